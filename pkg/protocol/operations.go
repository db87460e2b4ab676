package protocol

// Operation names the closed set of calls the router dispatches. Dispatch
// is keyed on this type; anything else resolves to UNKNOWN_OPERATION.
type Operation string

const (
	OpLaunch         Operation = "browser_launch"
	OpNavigate       Operation = "browser_navigate"
	OpClick          Operation = "browser_click"
	OpFill           Operation = "browser_fill"
	OpHover          Operation = "browser_hover"
	OpSelectOption   Operation = "browser_select_option"
	OpEvaluate       Operation = "browser_evaluate"
	OpScreenshot     Operation = "browser_screenshot"
	OpExtractContent Operation = "browser_extract_content"
	OpClose          Operation = "browser_close"
	OpStatus         Operation = "browser_status"
	OpSecurityStatus Operation = "security_status"
	OpSecurityUpdate Operation = "security_update_config"
)

// Operations returns the supported operations in a stable order, for tool
// listings and dispatch-table construction.
func Operations() []Operation {
	return []Operation{
		OpLaunch,
		OpNavigate,
		OpClick,
		OpFill,
		OpHover,
		OpSelectOption,
		OpEvaluate,
		OpScreenshot,
		OpExtractContent,
		OpClose,
		OpStatus,
		OpSecurityStatus,
		OpSecurityUpdate,
	}
}

// ParseOperation maps a wire name onto the operation set.
func ParseOperation(name string) (Operation, bool) {
	op := Operation(name)
	for _, known := range Operations() {
		if op == known {
			return op, true
		}
	}
	return "", false
}

// SessionScoped reports whether the operation acts on an existing
// browserId and is therefore subject to tenant-ownership checks.
func (o Operation) SessionScoped() bool {
	switch o {
	case OpNavigate, OpClick, OpFill, OpHover, OpSelectOption, OpEvaluate, OpScreenshot, OpExtractContent, OpClose:
		return true
	}
	return false
}
