package engine

import (
	"strings"

	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
)

// Kind is the transfer strategy an object resolves to. Classification
// happens once per object; everything downstream switches on the Kind,
// never on the raw MIME type.
type Kind int

const (
	// KindFolder is handled during hierarchy reconstruction, never
	// transferred.
	KindFolder Kind = iota

	// KindShortcut is a pointer into the source tenant; recreating it
	// would dangle, so it is skipped and counted as success.
	KindShortcut

	// KindNativeDoc is an editable native-format document: copied, or
	// exported to a portable format when copy fails.
	KindNativeDoc

	// KindOpaque is anything downloadable as raw bytes.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindShortcut:
		return "shortcut"
	case KindNativeDoc:
		return "native_doc"
	default:
		return "opaque"
	}
}

// ClassifyMIME resolves a MIME type to its transfer strategy.
func ClassifyMIME(mimeType string) Kind {
	switch {
	case mimeType == remote.MIMEFolder:
		return KindFolder
	case mimeType == remote.MIMEShortcut:
		return KindShortcut
	case strings.HasPrefix(mimeType, remote.NativePrefix):
		return KindNativeDoc
	default:
		return KindOpaque
	}
}
