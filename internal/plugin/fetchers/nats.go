package fetchers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDNATS asks a data service over NATS request/reply.
const IDNATS = "nats"

// CredentialNATSURL is the credentials (or environment) entry holding the server URL.
const CredentialNATSURL = "NATS_URL"

// DefaultRequestTimeout bounds a NATS request when the declaration sets none.
const DefaultRequestTimeout = 5 * time.Second

// ServiceErrorHeader carries a service-side failure on a reply.
const ServiceErrorHeader = "Nats-Service-Error"

// Request is the payload sent to the data service.
type Request struct {
	DocParam docparam.Param `json:"doc_param"`
	Fragment string         `json:"fragment"`
	Fetcher  string         `json:"fetcher"`
	Options  map[string]any `json:"options,omitempty"`
}

// NATS publishes a Request on the "subject" option and decodes the JSON reply
// as the fetcher's data.
type NATS struct{}

// NewNATS is the registry factory for NATS.
func NewNATS() plugin.DataSource { return NATS{} }

func (NATS) Fetch(ctx context.Context, in *plugin.Input, spec plugin.FetcherSpec) (any, error) {
	subject := spec.String("subject")
	if subject == "" {
		return nil, fmt.Errorf("nats fetcher %q: subject is required", spec.Name)
	}
	timeout := DefaultRequestTimeout
	if s := spec.String("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("nats fetcher %q: timeout: %w", spec.Name, err)
		}
		timeout = d
	}

	creds, err := credentials(in, spec)
	if err != nil {
		return nil, err
	}
	url := setting(spec, creds, "url", CredentialNATSURL)
	if url == "" {
		url = os.Getenv(CredentialNATSURL)
	}
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("reportcompiler"))
	if err != nil {
		return nil, fmt.Errorf("nats fetcher %q: failed to connect to NATS: %w", spec.Name, err)
	}
	defer conn.Close()

	payload, err := json.Marshal(Request{
		DocParam: in.Param,
		Fragment: in.Fragment,
		Fetcher:  spec.Name,
		Options:  requestOptions(spec.Options),
	})
	if err != nil {
		return nil, fmt.Errorf("nats fetcher %q: failed to marshal request: %w", spec.Name, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("nats fetcher %q: request %s: %w", spec.Name, subject, err)
	}
	if msg.Header != nil {
		if e := msg.Header.Get(ServiceErrorHeader); e != "" {
			return nil, fmt.Errorf("nats fetcher %q: service error: %w", spec.Name, errors.New(e))
		}
	}

	var data any
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, fmt.Errorf("nats fetcher %q: failed to unmarshal reply: %w", spec.Name, err)
	}
	return data, nil
}

// requestOptions drops the keys that only matter to the fetcher itself.
func requestOptions(opts map[string]any) map[string]any {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		switch k {
		case "type", "name", "subject", "url", "timeout", "credentials":
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
