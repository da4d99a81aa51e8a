package record

import "teststand/internal/diagnosis"

// AsBaseTypes converts the phase record into a recursively JSON-safe
// structure with stable keys. Output writers consume this form.
func (p *PhaseRecord) AsBaseTypes() map[string]interface{} {
	measurements := make(map[string]interface{}, len(p.Measurements))
	for name, m := range p.Measurements {
		measurements[name] = map[string]interface{}{
			"name":           m.Name,
			"outcome":        m.Outcome,
			"marginal":       m.Marginal,
			"measured_value": m.MeasuredValue,
			"units":          m.Units,
			"dimensions":     toAnySlice(m.Dimensions),
			"validators":     toAnySlice(m.Validators),
			"docstring":      m.Docstring,
		}
	}

	attachments := make(map[string]interface{}, len(p.Attachments))
	for name, a := range p.Attachments {
		attachments[name] = map[string]interface{}{
			"name":     a.Name,
			"mimetype": a.MimeType,
			"sha1":     a.SHA1,
		}
	}

	return map[string]interface{}{
		"name": p.Name,
		"codeinfo": map[string]interface{}{
			"name":        p.CodeInfo.Name,
			"source_file": p.CodeInfo.SourceFile,
			"line":        p.CodeInfo.Line,
		},
		"measurements": measurements,
		"options": map[string]interface{}{
			"timeout_millis":    p.Options.TimeoutMillis,
			"repeat_limit":      p.Options.RepeatLimit,
			"repeat_on_timeout": p.Options.RepeatOnTimeout,
			"has_run_if":        p.Options.HasRunIf,
		},
		"diagnosis_results":         resultsToAny(p.DiagnosisResults),
		"failure_diagnosis_results": resultsToAny(p.FailureDiagnosisResults),
		"start_time_millis":         p.StartTimeMillis,
		"end_time_millis":           p.EndTimeMillis,
		"attachments":               attachments,
		"result":                    p.Result,
		"outcome":                   string(p.Outcome),
		"marginal":                  p.Marginal,
	}
}

// AsBaseTypes converts the test record into a recursively JSON-safe
// structure with stable keys.
func (r *TestRecord) AsBaseTypes() map[string]interface{} {
	phases := make([]interface{}, 0, len(r.Phases))
	for _, p := range r.Phases {
		phases = append(phases, p.AsBaseTypes())
	}

	subtests := make([]interface{}, 0, len(r.Subtests))
	for _, s := range r.Subtests {
		subtests = append(subtests, map[string]interface{}{
			"name":              s.Name,
			"outcome":           string(s.Outcome),
			"start_time_millis": s.StartTimeMillis,
			"end_time_millis":   s.EndTimeMillis,
		})
	}

	branches := make([]interface{}, 0, len(r.Branches))
	for _, b := range r.Branches {
		branches = append(branches, map[string]interface{}{
			"name":      b.Name,
			"condition": b.Condition,
			"taken":     b.Taken,
		})
	}

	checkpoints := make([]interface{}, 0, len(r.Checkpoints))
	for _, c := range r.Checkpoints {
		checkpoints = append(checkpoints, map[string]interface{}{
			"name":      c.Name,
			"action":    c.Action,
			"triggered": c.Triggered,
			"result":    c.Result,
		})
	}

	diagnosers := make([]interface{}, 0, len(r.Diagnosers))
	for _, d := range r.Diagnosers {
		diagnosers = append(diagnosers, map[string]interface{}{
			"name": d.Name,
			"kind": d.Kind,
		})
	}

	diagnoses := make([]interface{}, 0, len(r.Diagnoses))
	for _, d := range r.Diagnoses {
		diagnoses = append(diagnoses, map[string]interface{}{
			"result":      string(d.Result),
			"description": d.Description,
			"component":   d.Component,
			"priority":    string(d.Priority),
			"is_failure":  d.IsFailure,
			"is_internal": d.IsInternal,
			"time_millis": d.TimeMillis,
		})
	}

	logRecords := make([]interface{}, 0, len(r.LogRecords))
	for _, l := range r.LogRecords {
		logRecords = append(logRecords, map[string]interface{}{
			"timestamp_millis": l.TimestampMillis,
			"level":            l.Level,
			"subsystem":        l.Subsystem,
			"message":          l.Message,
		})
	}

	return map[string]interface{}{
		"run_id":            r.RunID,
		"dut_id":            r.DUTID,
		"station_id":        r.StationID,
		"start_time_millis": r.StartTimeMillis,
		"end_time_millis":   r.EndTimeMillis,
		"outcome":           string(r.Outcome),
		"outcome_details":   toAnySlice(r.OutcomeDetails),
		"marginal":          r.Marginal,
		"metadata":          r.Metadata,
		"phases":            phases,
		"subtests":          subtests,
		"branches":          branches,
		"checkpoints":       checkpoints,
		"diagnosers":        diagnosers,
		"diagnoses":         diagnoses,
		"log_records":       logRecords,
	}
}

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func resultsToAny(in []diagnosis.Result) []interface{} {
	out := make([]interface{}, len(in))
	for i, r := range in {
		out[i] = string(r)
	}
	return out
}
