package procheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"procheck-sweep/lib/ratelimit"
	"procheck-sweep/lib/retrier"
	"procheck-sweep/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/procheck")

var (
	ErrNotInitialized = errors.New("session has not been initialized")
	ErrServerError    = errors.New("portal returned an error page")
	ErrSessionDesync  = errors.New("portal rejected the echoed form state")
	ErrRateLimited    = errors.New("portal is throttling or challenging requests")
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	searchModeButton = "Button1"
	searchModeLabel  = "Search by Person"
	searchButton     = "Button3"
	searchLabel      = "Search"
	lastNameField    = "TextBox2"

	drillEventTarget = "ReportViewer1$ctl13$ReportControl$ctl00"
)

type ClientOptions struct {
	BaseUrl   string
	UserAgent string
	// politeness pacing applied to every outbound request, nil disables
	Limiter *ratelimit.Limiter
	// nil defaults to DefaultClassifier
	Classifier Classifier
}

// Client owns one conversation with the portal: the HTTP session cookie
// jar plus the current baseline form state. The protocol is strictly
// sequential, each response's fields are required input to the next
// request, so a Client must never be shared across goroutines; scale out
// with independent Clients instead.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	limiter    *ratelimit.Limiter
	classifier Classifier

	state       FormState
	initialized bool
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/procheck/http")

	classifier := opts.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}

	return &Client{
		BaseUrl:    baseUrl,
		Http:       client,
		limiter:    opts.Limiter,
		classifier: classifier,
	}, nil
}

// checkBody maps an error-page signature to the retry taxonomy: server
// crashes are plainly transient, desyncs are transient but force a session
// reset, throttling backs off harder.
func (c *Client) checkBody(html string) error {
	switch c.classifier.Classify(html) {
	case CategoryServerError:
		return retrier.Transient(ErrServerError)
	case CategoryDesync:
		return retrier.Stale(ErrSessionDesync)
	case CategoryRateLimited:
		return retrier.RateLimited(ErrRateLimited)
	}
	return nil
}

func (c *Client) fetchLanding(ctx context.Context) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get("")
	if err != nil {
		return nil, retrier.Transient(err)
	}
	if res.StatusCode() >= 500 {
		return nil, retrier.Transient(fmt.Errorf("status %d from landing page", res.StatusCode()))
	}
	if err := c.checkBody(res.String()); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// postback resubmits a complete field map against the fixed endpoint and
// returns the response body once it passes the error-page classifier.
func (c *Client) postback(ctx context.Context, form FormState) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post("")
	if err != nil {
		return "", retrier.Transient(err)
	}
	if res.StatusCode() >= 500 {
		return "", retrier.Transient(fmt.Errorf("status %d from postback", res.StatusCode()))
	}
	html := res.String()
	if err := c.checkBody(html); err != nil {
		return "", err
	}
	return html, nil
}

// Initialize runs the two-step handshake: fetch the landing page, then
// post the "search by person" mode switch. The fields of the mode-switch
// response become the baseline state every later postback is built from.
// Safe to call again at any time, it discards the previous conversation.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Initialize")
	defer span.End()

	c.initialized = false

	doc, err := c.fetchLanding(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch landing page")
		return err
	}

	payload := ExtractFormFields(doc)
	payload[searchModeButton] = searchModeLabel
	delete(payload, "Button2")
	delete(payload, searchButton)

	html, err := c.postback(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mode-switch postback rejected")
		return fmt.Errorf("initialize search session: %w", err)
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse mode-switch response")
		return err
	}

	c.state = ExtractFormFields(doc)
	c.initialized = true
	return nil
}

func (c *Client) Initialized() bool {
	return c.initialized
}

// Search posts a surname-prefix query and returns the parsed result rows.
// On success the baseline form state is replaced by the response's fields,
// so the call is not idempotent with respect to session state even though
// the semantic result set is.
func (c *Client) Search(ctx context.Context, prefix string) ([]Agent, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()
	span.SetAttributes(attribute.String("prefix", prefix))

	if !c.initialized {
		return nil, ErrNotInitialized
	}

	form := c.state.Clone()
	form[lastNameField] = prefix
	form[searchButton] = searchLabel

	html, err := c.postback(ctx, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search postback rejected")
		return nil, fmt.Errorf("search %q: %w", prefix, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse search response")
		return nil, err
	}

	c.state = ExtractFormFields(doc)

	agents := ParseResults(doc)
	span.SetAttributes(attribute.Int("rows", len(agents)))
	return agents, nil
}

// Drillthrough asks the report viewer to render the detail sub-report for
// one result row and extracts contact info from it. The baseline form
// state is deliberately NOT re-derived from the response: detail pages do
// not carry all the fields Search depends on, so the state captured by the
// last Initialize/Search stays authoritative.
func (c *Client) Drillthrough(ctx context.Context, drillID string) (ContactInfo, error) {
	ctx, span := tracer.Start(ctx, "client:Drillthrough")
	defer span.End()

	if !c.initialized {
		return ContactInfo{}, ErrNotInitialized
	}

	form := c.state.Clone()
	form["__EVENTTARGET"] = drillEventTarget
	form["__EVENTARGUMENT"] = fmt.Sprintf("Drillthrough$%s", drillID)
	delete(form, searchModeButton)
	delete(form, searchButton)

	html, err := c.postback(ctx, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "drillthrough postback rejected")
		return ContactInfo{}, fmt.Errorf("drillthrough: %w", err)
	}

	info := ParseContactInfo(html)
	span.SetAttributes(
		attribute.Bool("has_email", info.Email != ""),
		attribute.Bool("has_phone", info.Phone != ""),
	)
	return info, nil
}
