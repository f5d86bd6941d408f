package ddsapi

import (
	"context"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// ErrorClass groups failures by how they should be retried.
type ErrorClass int

const (
	// ClassFatal failures are surfaced immediately without retrying.
	ClassFatal ErrorClass = iota

	// ClassConnection failures are network problems reaching the service.
	ClassConnection

	// ClassServiceDown is an HTTP 503, typically scheduled maintenance.
	ClassServiceDown

	// ClassForbidden is an HTTP 403 on a chunk transfer, meaning the
	// pre-signed destination expired and must be refreshed.
	ClassForbidden

	// ClassNotConsistent is the service's eventual-consistency signal. The
	// resource becomes usable eventually, so this never gives up.
	ClassNotConsistent
)

// Decision is the outcome of the retry policy for one failure.
type Decision int

const (
	// GiveUp means the failure should be surfaced to the caller.
	GiveUp Decision = iota

	// RetryAfterDelay means sleep for the returned duration and try again.
	RetryAfterDelay

	// RetryWithRefresh means re-request the expiring resource (a fresh
	// destination descriptor) and try again immediately.
	RetryWithRefresh
)

// Settings holds every retry cap and delay. They default to the values the
// service operators recommend but are plain data so tests and callers can
// override any of them.
type Settings struct {
	// Retrying a connection failure reaching the data service API.
	ConnectionRetryTimes int
	ConnectionRetryDelay time.Duration

	// How long to sleep when we receive 503 from the data service
	// (weekly system maintenance typically). Never gives up.
	ServiceDownRetryDelay time.Duration

	// How long to sleep waiting for the data service to become consistent.
	// Never gives up.
	NotConsistentRetryDelay time.Duration

	// Retrying a connection failure while uploading a file chunk.
	SendExternalRetryTimes int
	SendExternalRetryDelay time.Duration

	// Times to retry after receiving a 403 transferring a file chunk. The
	// destination descriptor is recreated before retrying.
	ExternalForbiddenRetryTimes int

	// Retrying a connection failure while downloading part of a file.
	FetchExternalRetryTimes int
	FetchExternalRetryDelay time.Duration
}

// DefaultSettings returns the standard retry configuration.
func DefaultSettings() Settings {
	return Settings{
		ConnectionRetryTimes:        5,
		ConnectionRetryDelay:        1 * time.Second,
		ServiceDownRetryDelay:       60 * time.Second,
		NotConsistentRetryDelay:     2 * time.Second,
		SendExternalRetryTimes:      4,
		SendExternalRetryDelay:      20 * time.Second,
		ExternalForbiddenRetryTimes: 2,
		FetchExternalRetryTimes:     5,
		FetchExternalRetryDelay:     20 * time.Second,
	}
}

// CallSettings is the slice of Settings that applies to one class of network
// call. Control-plane calls, chunk uploads, and chunk downloads each get
// their own caps and delays.
type CallSettings struct {
	ConnectionRetryTimes int
	ConnectionRetryDelay time.Duration
	ServiceDownDelay     time.Duration
	NotConsistentDelay   time.Duration
	ForbiddenRetryTimes  int
}

// ControlCall is the retry configuration for data service API calls.
func (s Settings) ControlCall() CallSettings {
	return CallSettings{
		ConnectionRetryTimes: s.ConnectionRetryTimes,
		ConnectionRetryDelay: s.ConnectionRetryDelay,
		ServiceDownDelay:     s.ServiceDownRetryDelay,
		NotConsistentDelay:   s.NotConsistentRetryDelay,
	}
}

// SendChunkCall is the retry configuration for uploading one chunk to the
// external store.
func (s Settings) SendChunkCall() CallSettings {
	return CallSettings{
		ConnectionRetryTimes: s.SendExternalRetryTimes,
		ConnectionRetryDelay: s.SendExternalRetryDelay,
		ServiceDownDelay:     s.ServiceDownRetryDelay,
		NotConsistentDelay:   s.NotConsistentRetryDelay,
		ForbiddenRetryTimes:  s.ExternalForbiddenRetryTimes,
	}
}

// FetchChunkCall is the retry configuration for downloading one part of a
// file from the external store.
func (s Settings) FetchChunkCall() CallSettings {
	return CallSettings{
		ConnectionRetryTimes: s.FetchExternalRetryTimes,
		ConnectionRetryDelay: s.FetchExternalRetryDelay,
		ServiceDownDelay:     s.ServiceDownRetryDelay,
		NotConsistentDelay:   s.NotConsistentRetryDelay,
		ForbiddenRetryTimes:  s.ExternalForbiddenRetryTimes,
	}
}

// Classify maps an error to its retry class. Service responses are
// classified by status code; anything that never produced a response is a
// connection failure.
func Classify(err error) ErrorClass {
	var notConsistent *NotConsistentError
	if errors.As(err, &notConsistent) {
		return ClassNotConsistent
	}

	var dsErr *DataServiceError
	if errors.As(err, &dsErr) {
		switch dsErr.StatusCode {
		case 503:
			return ClassServiceDown
		case 403:
			return ClassForbidden
		default:
			return ClassFatal
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassConnection
	}
	return ClassFatal
}

// Decide is the retry policy decision table. `attempt` is the number of
// failures already seen for this class within the current call.
func Decide(class ErrorClass, attempt int, cs CallSettings) (Decision, time.Duration) {
	switch class {
	case ClassConnection:
		if attempt >= cs.ConnectionRetryTimes {
			return GiveUp, 0
		}
		return RetryAfterDelay, cs.ConnectionRetryDelay
	case ClassServiceDown:
		return RetryAfterDelay, cs.ServiceDownDelay
	case ClassNotConsistent:
		return RetryAfterDelay, cs.NotConsistentDelay
	case ClassForbidden:
		if attempt >= cs.ForbiddenRetryTimes {
			return GiveUp, 0
		}
		return RetryWithRefresh, 0
	default:
		return GiveUp, 0
	}
}

// Retrier runs a function under the retry policy for one call class.
type Retrier struct {
	Call  CallSettings
	Clock clockwork.Clock
}

// Do runs fn, retrying per the decision table until it succeeds, gives up,
// or ctx is canceled. Sleeps go through the clock so callers can interrupt
// between attempts (and tests can skip the waits).
func (r Retrier) Do(ctx context.Context, fn func() error) error {
	return r.DoWithRefresh(ctx, fn, nil)
}

// DoWithRefresh is Do with a refresh hook that is invoked before retrying a
// ClassForbidden failure (the expiring resource is recreated). fn failures
// of other classes never trigger refresh.
func (r Retrier) DoWithRefresh(ctx context.Context, fn, refresh func() error) error {
	attempts := map[ErrorClass]int{}
	warnedServiceDown := false
	for {
		err := fn()
		if err == nil {
			return nil
		}

		class := Classify(err)
		decision, delay := Decide(class, attempts[class], r.Call)
		attempts[class]++

		switch decision {
		case GiveUp:
			return err
		case RetryWithRefresh:
			if refresh == nil {
				return err
			}
			if refreshErr := refresh(); refreshErr != nil {
				return errors.WithContext(refreshErr, "refresh expired resource")
			}
			continue
		case RetryAfterDelay:
			if class == ClassServiceDown && !warnedServiceDown {
				log.Warn("The data service is currently unavailable, so this " +
					"operation cannot complete right now. It will be retried " +
					"automatically until the service is available again.")
				warnedServiceDown = true
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.Clock.After(delay):
			}
		}
	}
}
