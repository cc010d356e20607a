package grpc

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// ErrorDomain tags the ErrorInfo detail attached to every mapped error.
const ErrorDomain = "accountkeeper"

var kindCodes = map[common.Kind]codes.Code{
	common.KindValidation:       codes.InvalidArgument,
	common.KindNotFound:         codes.NotFound,
	common.KindInactiveToken:    codes.Unauthenticated,
	common.KindAuth:             codes.Unauthenticated,
	common.KindForbidden:        codes.PermissionDenied,
	common.KindDelivery:         codes.Unavailable,
	common.KindStoreUnavailable: codes.Unavailable,
	common.KindInternal:         codes.Internal,
}

// toStatus converts a service error into a gRPC status. The message is the
// caller-safe one; the reason travels in an ErrorInfo detail so clients can
// tell, say, an expired access token from an invalid one.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var tagged *common.Error
	if !errors.As(err, &tagged) {
		return status.Error(codes.Internal, common.ErrorInternal.Message)
	}

	code, ok := kindCodes[tagged.Kind]
	if !ok {
		code = codes.Internal
	}
	if errors.Is(tagged, common.ErrEmailTaken) {
		code = codes.AlreadyExists
	}

	st := status.New(code, tagged.Message)
	if withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: tagged.Reason,
		Domain: ErrorDomain,
	}); err == nil {
		st = withInfo
	}
	return st.Err()
}

// ReasonOf extracts the ErrorInfo reason from a status error, or "".
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == ErrorDomain {
			return info.Reason
		}
	}
	return ""
}
