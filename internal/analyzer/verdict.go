package analyzer

import "toolvet/internal/contract"

// Synthesize reduces diagnostics to a verdict. In strict mode every warning
// is promoted to an error before reduction. Reduction: any error means
// fail; any remaining warning means pass-with-warnings; otherwise pass.
func Synthesize(diags []contract.Diagnostic, strict bool) *contract.AnalysisResult {
	result := &contract.AnalysisResult{
		Diagnostics: make([]contract.Diagnostic, 0, len(diags)),
	}

	for _, d := range diags {
		if strict && d.Severity == contract.SeverityWarning {
			d.Severity = contract.SeverityError
		}
		result.Diagnostics = append(result.Diagnostics, d)
		switch d.Severity {
		case contract.SeverityError:
			result.Errors = append(result.Errors, d)
		case contract.SeverityWarning:
			result.Warnings = append(result.Warnings, d)
		}
	}

	switch {
	case len(result.Errors) > 0:
		result.Verdict = contract.VerdictFail
	case len(result.Warnings) > 0:
		result.Verdict = contract.VerdictPassWithWarnings
	default:
		result.Verdict = contract.VerdictPass
	}
	return result
}
