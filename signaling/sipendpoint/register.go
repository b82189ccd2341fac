package sipendpoint

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"
)

// registerOptions generalizes the teacher's registration knobs from a
// fixed one-shot REGISTER flow into one this package reuses for the
// initial Register call and its background re-registration loop.
type registerOptions struct {
	Username      string
	Password      string
	ProxyHost     string
	Expiry        time.Duration
	RetryInterval time.Duration
}

// registerTransaction tracks one registration's binding across its
// initial REGISTER and subsequent re-REGISTERs.
type registerTransaction struct {
	opts   registerOptions
	origin *sip.Request

	client *sipgo.Client
	log    zerolog.Logger

	expiry time.Duration
}

func newRegisterTransaction(client *sipgo.Client, recipient sip.Uri, contact sip.ContactHeader, opts registerOptions, log zerolog.Logger) *registerTransaction {
	req := sip.NewRequest(sip.REGISTER, recipient)
	req.AppendHeader(&contact)

	if opts.ProxyHost != "" {
		req.SetDestination(opts.ProxyHost)
	}
	if opts.Expiry > 0 {
		expires := sip.ExpiresHeader(opts.Expiry.Seconds())
		req.AppendHeader(&expires)
	}

	return &registerTransaction{
		origin: req,
		opts:   opts,
		client: client,
		log:    log.With().Str("caller", "Register").Logger(),
	}
}

func (t *registerTransaction) register(ctx context.Context) error {
	req := t.origin
	contact := *req.Contact().Clone()

	res, err := doRegister(ctx, t.client, req)
	if err != nil {
		return fmt.Errorf("sipendpoint: register transaction failed: %w", err)
	}

	if via := res.Via(); via != nil {
		if rport, _ := via.Params.Get("rport"); rport != "" {
			if p, err := strconv.Atoi(rport); err == nil {
				contact.Address.Port = p
			}
			if received, _ := via.Params.Get("received"); received != "" {
				contact.Address.Host = received
			}
			req.ReplaceHeader(&contact)
		}
	}

	if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
		res, err = doDigestAuth(ctx, t.client, req, res, sipgo.DigestAuth{
			Username: t.opts.Username,
			Password: t.opts.Password,
		})
		if err != nil {
			return fmt.Errorf("sipendpoint: digest auth failed: %w", err)
		}
	}

	if res.StatusCode != sip.StatusOK {
		return &signalingRegisterError{statusLine: res.StartLine()}
	}

	t.expiry = t.opts.Expiry
	if h := res.GetHeader("Expires"); h != nil {
		if val, err := strconv.Atoi(h.Value()); err == nil {
			t.expiry = time.Duration(val) * time.Second
		}
	}
	return nil
}

func (t *registerTransaction) unregister(ctx context.Context) error {
	req := t.origin
	req.RemoveHeader("Expires")
	req.RemoveHeader("Contact")
	req.AppendHeader(sip.NewHeader("Contact", "*"))
	expires := sip.ExpiresHeader(0)
	req.AppendHeader(&expires)
	req.RemoveHeader("Via")
	return t.doRequest(ctx, req)
}

func (t *registerTransaction) qualify(ctx context.Context) error {
	req := t.origin
	req.RemoveHeader("Via")
	return t.doRequest(ctx, req)
}

func (t *registerTransaction) doRequest(ctx context.Context, req *sip.Request) error {
	res, err := doRegister(ctx, t.client, req)
	if err != nil {
		return fmt.Errorf("sipendpoint: register request failed: %w", err)
	}

	if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
		res, err = doDigestAuth(ctx, t.client, req, res, sipgo.DigestAuth{
			Username: t.opts.Username,
			Password: t.opts.Password,
		})
		if err != nil {
			return fmt.Errorf("sipendpoint: digest auth failed: %w", err)
		}
	}

	if res.StatusCode != sip.StatusOK {
		return &signalingRegisterError{statusLine: res.StartLine()}
	}
	return nil
}

// qualifyLoop periodically re-registers at calcRetry(expiry) until ctx is
// cancelled. A terminal failure is reported to onFailure and stops the loop.
func (t *registerTransaction) qualifyLoop(ctx context.Context, onFailure func(error)) {
	retry := t.calcRetry(t.expiry)
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		prevExpiry := t.expiry
		if err := t.qualify(ctx); err != nil {
			if onFailure != nil {
				onFailure(err)
			}
			return
		}

		if t.expiry != prevExpiry {
			retry = t.calcRetry(t.expiry)
			ticker.Reset(retry)
		}
	}
}

func (t *registerTransaction) calcRetry(expiry time.Duration) time.Duration {
	if t.opts.RetryInterval != 0 {
		return t.opts.RetryInterval
	}
	retry := time.Duration(expiry.Seconds()*0.75) * time.Second
	if retry == 0 {
		retry = 30 * time.Second
	}
	return retry
}

// doRegister sends req through the transaction layer with REGISTER-specific
// header building and waits for the final (non-provisional) response.
func doRegister(ctx context.Context, client *sipgo.Client, req *sip.Request) (*sip.Response, error) {
	tx, err := client.TransactionRequest(ctx, req, sipgo.ClientRequestRegisterBuild)
	if err != nil {
		return nil, err
	}
	return waitFinalResponse(ctx, tx)
}

// doDigestAuth applies digest auth to req and waits for the final response
// of the resulting transaction.
func doDigestAuth(ctx context.Context, client *sipgo.Client, req *sip.Request, res *sip.Response, auth sipgo.DigestAuth) (*sip.Response, error) {
	tx, err := client.DoDigestAuth(ctx, req, res, auth)
	if err != nil {
		return nil, err
	}
	return waitFinalResponse(ctx, tx)
}

func waitFinalResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	defer tx.Terminate()
	for {
		select {
		case res := <-tx.Responses():
			if res == nil {
				continue
			}
			if res.IsProvisional() {
				continue
			}
			return res, nil
		case <-tx.Done():
			return nil, tx.Err()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type signalingRegisterError struct {
	statusLine string
}

func (e *signalingRegisterError) Error() string {
	return "sipendpoint: registration rejected: " + strings.TrimSpace(e.statusLine)
}
