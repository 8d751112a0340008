// Package codec implements the stable length-prefixed wire protocol spoken between the
// client and the service: request/response/stream-message encoding and the framing that
// carries them over a Unix domain socket.
package codec

import "time"

// Request is the sum type of everything a client may ask the service to do. ID is a
// client-generated correlation id threaded through the daemon's log lines for one request;
// it carries no protocol meaning beyond that.
type Request struct {
	ID           string
	Authenticate *AuthenticateRequest
	Enroll       *EnrollRequest
	Enhance      *EnhanceRequest
}

type AuthenticateRequest struct {
	Username  string
	Challenge []byte
	Timestamp time.Time
}

type EnrollRequest struct {
	Username      string
	EnablePreview bool
}

type EnhanceRequest struct {
	Username             string
	AdditionalCaptures   *uint32
	ReplaceWeak          bool
	EnablePreview        bool
}

// Response is the sum type of every terminal reply the service sends.
type Response struct {
	Auth    *AuthResponse
	Enroll  *EnrollResponse
	Enhance *EnhanceResponse
	Error   *string
}

type AuthResponse struct {
	Success   bool
	Message   string
	Attempts  uint32
	Signature []byte
	Timestamp time.Time
}

type EnrollResponse struct {
	Success bool
	Message string
}

type EnhanceResponse struct {
	Success          bool
	Message          string
	EmbeddingsBefore uint64
	EmbeddingsAfter  uint64
	ReplacedCount    uint64
}

// StreamMessage is the sum type of interstitial frames sent during enroll/enhance before
// the terminal Response.
type StreamMessage struct {
	PreviewFrame *PreviewFrame
	StatusUpdate *StatusUpdate
	Complete     bool
}

type PreviewFrame struct {
	ASCII    string
	Captured uint32
	Total    uint32
}

type StatusUpdate struct {
	Message string
}
