package models

// AudioInput wraps the uploaded audio payload.
type AudioInput struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Empty reports whether the upload carried no bytes.
func (a AudioInput) Empty() bool {
	return len(a.Data) == 0
}

// StagedAudio is the backend-ready form of an upload: either an inline
// base64 data URI or an object-store URI. Exactly one variant is populated.
type StagedAudio struct {
	DataURI   string
	RemoteURI string
}

// InlineAudio wraps a data URI produced by inline staging.
func InlineAudio(dataURI string) StagedAudio {
	return StagedAudio{DataURI: dataURI}
}

// RemoteAudio wraps an object-store URI produced by remote staging.
func RemoteAudio(uri string) StagedAudio {
	return StagedAudio{RemoteURI: uri}
}

// IsRemote reports whether the audio lives in object storage. Backends use
// this to decide whether the reference needs server-side resolution.
func (s StagedAudio) IsRemote() bool {
	return s.RemoteURI != ""
}

// Payload returns whichever reference is populated.
func (s StagedAudio) Payload() string {
	if s.IsRemote() {
		return s.RemoteURI
	}
	return s.DataURI
}

// Usage is the normalized token accounting for one transcription. Backends
// without token accounting report the zero value.
type Usage struct {
	InputTokens  int32
	TextTokens   int32
	AudioTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// TranscriptionResult is the normalized non-streaming response payload.
type TranscriptionResult struct {
	Text  string
	Usage Usage
}

// TranscriptionRequest carries everything an adapter needs for one call.
type TranscriptionRequest struct {
	Spec   ModelSpec
	Audio  StagedAudio
	Prompt string
}
