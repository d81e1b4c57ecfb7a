// Package federation fetches person profiles from the pods that own them.
package federation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
	"github.com/gleenn/diaspora/internal/convert"
	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
)

// Fetcher retrieves the profile of a person from its home pod.
//
// Implementations return an error wrapping errs.ErrNotFound when the pod
// answers that the person does not exist, errs.ErrTransport when the pod
// cannot be reached or answers garbage, and the context error on cancellation.
type Fetcher interface {
	FetchRemoteProfile(ctx context.Context, h handle.Handle) (model.ProfileData, error)
}

// PodHeader carries the requesting pod's host in outgoing metadata.
const PodHeader = "x-diaspora-pod"

// GRPCFetcher calls the Export method of the People service on the remote host.
type GRPCFetcher struct {
	port     int
	creds    credentials.TransportCredentials
	policy   Policy
	localPod string
	dialOpts []grpc.DialOption
	log      *zap.Logger
}

// Option configures a GRPCFetcher.
type Option func(*GRPCFetcher)

// WithInsecure disables TLS towards peer pods (development only).
func WithInsecure() Option {
	return func(f *GRPCFetcher) { f.creds = insecure.NewCredentials() }
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(f *GRPCFetcher) { f.policy = p }
}

// WithDialOptions appends raw dial options, e.g. a context dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(f *GRPCFetcher) { f.dialOpts = append(f.dialOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(f *GRPCFetcher) { f.log = log }
}

// NewGRPCFetcher builds a fetcher that dials host:port of the handle's pod.
// localPod is announced to peers in PodHeader.
func NewGRPCFetcher(port int, localPod string, opts ...Option) *GRPCFetcher {
	f := &GRPCFetcher{
		port:     port,
		creds:    credentials.NewTLS(nil),
		policy:   DefaultPolicy(),
		localPod: localPod,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchRemoteProfile implements Fetcher.
func (f *GRPCFetcher) FetchRemoteProfile(ctx context.Context, h handle.Handle) (model.ProfileData, error) {
	if err := f.policy.Check(h); err != nil {
		return model.ProfileData{}, err
	}
	// passthrough keeps name resolution in the dialer, like grpc.Dial did
	target := "passthrough:///" + net.JoinHostPort(h.Host(), strconv.Itoa(f.port))
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(f.creds)}, f.dialOpts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return model.ProfileData{}, fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, h.Host(), err)
	}
	defer func() { _ = conn.Close() }()

	ctx = metadata.AppendToOutgoingContext(ctx, PodHeader, f.localPod)
	doc, err := peoplev1.NewPeopleClient(conn).Export(ctx, h.String())
	if err != nil {
		mapped := f.mapGRPCError(ctx, err)
		f.log.Debug("remote export failed",
			zap.String("handle", h.String()),
			zap.String("code", status.Code(err).String()),
			zap.Error(mapped),
		)
		return model.ProfileData{}, mapped
	}

	pd, err := convert.DocumentToProfileData(doc)
	if err != nil {
		return model.ProfileData{}, fmt.Errorf("%w: %s: %v", errs.ErrTransport, h.Host(), err)
	}
	if pd.Handle != h {
		return model.ProfileData{}, fmt.Errorf("%w: %s answered for %q instead of %q", errs.ErrTransport, h.Host(), pd.Handle, h)
	}
	return pd, nil
}

func (f *GRPCFetcher) mapGRPCError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, st.Message())
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("%w: %s: %s", errs.ErrTransport, st.Code(), st.Message())
	}
}

var _ Fetcher = (*GRPCFetcher)(nil)

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, h handle.Handle) (model.ProfileData, error)

// FetchRemoteProfile calls fn.
func (fn FetcherFunc) FetchRemoteProfile(ctx context.Context, h handle.Handle) (model.ProfileData, error) {
	return fn(ctx, h)
}

// Disabled never reaches the network; every fetch reports not found.
var Disabled Fetcher = FetcherFunc(func(_ context.Context, h handle.Handle) (model.ProfileData, error) {
	return model.ProfileData{}, fmt.Errorf("%w: federation disabled for %q", errs.ErrNotFound, h)
})

// IsTransient reports whether err is a failure worth counting against a host.
func IsTransient(err error) bool {
	return errors.Is(err, errs.ErrTransport) || errors.Is(err, context.DeadlineExceeded)
}
