// Package errclass maps arbitrary failures to a retry decision and a
// message that is safe to persist and show to users.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind names the rule that matched.
type Kind string

const (
	KindRateLimit        Kind = "rate_limit"
	KindTimeout          Kind = "timeout"
	KindNetwork          Kind = "network"
	KindServer           Kind = "server"
	KindPrivate          Kind = "private"
	KindAgeRestricted    Kind = "age_restricted"
	KindRegionRestricted Kind = "region_restricted"
	KindCopyright        Kind = "copyright"
	KindCaptionsDisabled Kind = "captions_disabled"
	KindNotFound         Kind = "not_found"
	KindTemporary        Kind = "temporary"
	KindPermanent        Kind = "permanent"
	KindUnknown          Kind = "unknown"
)

const (
	MessageTryLater = "The video service is temporarily unavailable. Please try again later."
	MessageGeneric  = "Something went wrong while processing this video."
)

// Classification is the result of Classify.
type Classification struct {
	Kind        Kind
	UserMessage string
	Retryable   bool
}

// statusCoder is implemented by HTTP client errors that carry a status.
type statusCoder interface {
	HTTPStatus() int
}

type rule struct {
	kind      Kind
	patterns  []string
	retryable bool
	message   string
}

// Matched top to bottom; the first hit wins.
var rules = []rule{
	{KindRateLimit, []string{"429", "too many requests", "rate limit", "rate-limit", "ratelimit", "quota"}, true, MessageTryLater},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}, true, MessageTryLater},
	{KindNetwork, []string{
		"connection refused", "connection reset", "no such host", "network is unreachable",
		"unexpected eof", "broken pipe", "tls handshake", "temporary failure in name resolution",
		"server misbehaving", "503 service unavailable", "502 bad gateway",
	}, true, MessageTryLater},
	{KindServer, []string{
		"http error 500", "http error 502", "http error 503", "http error 504",
		"internal server error", "service unavailable", "bad gateway", "gateway timeout",
	}, true, MessageTryLater},
	{KindPrivate, []string{"private video", "video is private"}, false, "This video is private."},
	{KindAgeRestricted, []string{"confirm your age", "age-restricted", "age restricted", "inappropriate for some users"}, false, "This video is age-restricted."},
	{KindRegionRestricted, []string{"not available in your country", "blocked it in your country", "region-restricted", "region restricted", "geo-restricted", "geo restricted"}, false, "This video is not available in this region."},
	{KindCopyright, []string{"copyright"}, false, "This video was removed because of a copyright claim."},
	{KindCaptionsDisabled, []string{"subtitles are disabled", "captions are disabled", "captions disabled", "transcripts disabled", "transcript is disabled"}, false, "Captions are disabled for this video."},
	{KindNotFound, []string{"video unavailable", "not found", "404", "does not exist", "has been removed", "no longer available"}, false, "This video could not be found."},
}

// Classify decides whether err is retryable and picks the user message.
// Unmatched errors are not retryable and get a generic message that never
// includes the error text.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, UserMessage: MessageGeneric}
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return Classification{Kind: KindPermanent, UserMessage: pe.Message, Retryable: false}
	}
	var te *TemporaryError
	if errors.As(err, &te) {
		return Classification{Kind: KindTemporary, UserMessage: te.Message, Retryable: true}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTimeout, UserMessage: MessageTryLater, Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTimeout, UserMessage: MessageTryLater, Retryable: true}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Kind: KindNetwork, UserMessage: MessageTryLater, Retryable: true}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Kind: KindNetwork, UserMessage: MessageTryLater, Retryable: true}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatus(); {
		case status == 429:
			return Classification{Kind: KindRateLimit, UserMessage: MessageTryLater, Retryable: true}
		case status >= 500:
			return Classification{Kind: KindServer, UserMessage: MessageTryLater, Retryable: true}
		}
	}

	text := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(text, p) {
				return Classification{Kind: r.kind, UserMessage: r.message, Retryable: r.retryable}
			}
		}
	}

	return Classification{Kind: KindUnknown, UserMessage: MessageGeneric}
}
