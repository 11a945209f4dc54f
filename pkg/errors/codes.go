package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Fatal           bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrHeaderInvalid: {
		Code:            ErrHeaderInvalid,
		Fatal:           false,
		Description:     "Header row does not match the expected action log columns",
		SuggestedAction: "Check the export settings: simplot validate <file>",
	},
	ErrRowParse: {
		Code:            ErrRowParse,
		Fatal:           false,
		Description:     "Row could not be converted into an action record",
		SuggestedAction: "Inspect the reported line; the timestamp column must be HH:MM:SS",
	},
	ErrRangeMerge: {
		Code:            ErrRangeMerge,
		Fatal:           false,
		Description:     "Two range markers of the same direction arrived without a close",
		SuggestedAction: "Look for a duplicated Begin/End CPR entry near the reported line",
	},
	ErrEncoding: {
		Code:            ErrEncoding,
		Fatal:           true,
		Description:     "Input bytes could not be decoded with the configured encoding",
		SuggestedAction: "Retry with --encoding windows-1252 or re-export as UTF-8",
	},
	ErrIO: {
		Code:            ErrIO,
		Fatal:           true,
		Description:     "Reading the input failed",
		SuggestedAction: "Check the file is readable and not truncated",
	},
	ErrInputNotFound: {
		Code:            ErrInputNotFound,
		Fatal:           true,
		Description:     "Input file or directory does not exist",
		SuggestedAction: "Check the path passed on the command line",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Fatal:           true,
		Description:     "Operation cancelled by user or system",
		SuggestedAction: "Check if cancellation was intentional",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Fatal:           true,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with --debug and check the logs",
	},
}

// IsFatal returns true if the given error code ends processing of the input.
func IsFatal(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Fatal
	}
	return true
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug and check the logs"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
