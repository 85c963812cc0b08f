package remote

// ExportTarget is the portable format a native document converts to
// when it cannot be copied directly.
type ExportTarget struct {
	MIME      string
	Extension string
}

// exportTargets maps each native editable format to its export format.
var exportTargets = map[string]ExportTarget{
	MIMEDocument: {
		MIME:      "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	MIMESpreadsheet: {
		MIME:      "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	MIMEPresentation: {
		MIME:      "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
	MIMEDrawing: {
		MIME:      "application/pdf",
		Extension: ".pdf",
	},
}

// ExportTargetFor returns the export format for a native MIME type.
func ExportTargetFor(mimeType string) (ExportTarget, bool) {
	t, ok := exportTargets[mimeType]
	return t, ok
}
