package loader

import "fmt"

// ErrorKind classifies a LoadError.
type ErrorKind int

const (
	// ManifestUnreadable means no manifest name yielded a decodable manifest.
	ManifestUnreadable ErrorKind = iota + 1
	// CoverImageUnreadable means the cover entry is missing or failed to decode.
	CoverImageUnreadable
	// SongUnreadable means the audio entry is missing.
	SongUnreadable
	// StandardModeMissing means no characteristic set matches the supported mode.
	StandardModeMissing
	// ChartUnreadable means a selected chart is missing or failed to decode.
	ChartUnreadable
)

func (k ErrorKind) String() string {
	switch k {
	case ManifestUnreadable:
		return "manifest unreadable"
	case CoverImageUnreadable:
		return "cover image unreadable"
	case SongUnreadable:
		return "song unreadable"
	case StandardModeMissing:
		return "standard mode missing"
	case ChartUnreadable:
		return "chart unreadable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrManifestUnreadable   = &LoadError{Kind: ManifestUnreadable}
	ErrCoverImageUnreadable = &LoadError{Kind: CoverImageUnreadable}
	ErrSongUnreadable       = &LoadError{Kind: SongUnreadable}
	ErrStandardModeMissing  = &LoadError{Kind: StandardModeMissing}
	ErrChartUnreadable      = &LoadError{Kind: ChartUnreadable}
)

// LoadError is the only error type returned by Load and LoadPreview.
type LoadError struct {
	Kind ErrorKind

	// File is the entry involved: the chart for ChartUnreadable, the cover or
	// song file, or the characteristic name for StandardModeMissing.
	File string

	// Err is the underlying cause, often a *parser.DecodeError. May be nil.
	Err error
}

func (e *LoadError) Error() string {
	msg := e.Kind.String()
	if e.File != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.File)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches any LoadError of the same Kind.
func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	return ok && t.Kind == e.Kind
}
