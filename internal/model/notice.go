package model

// NoticeLevel controls how a Notice is rendered.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-visible message produced by the core for the
// presentation layer.
type Notice struct {
	Level NoticeLevel
	Text  string
}
