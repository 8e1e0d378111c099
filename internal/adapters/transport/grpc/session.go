package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
)

const (
	SessionServiceName = "account.v1.Session"

	verifyAccessMethod      = "/" + SessionServiceName + "/VerifyAccess"
	getAccountMethod        = "/" + SessionServiceName + "/GetAccount"
	getChannelProfileMethod = "/" + SessionServiceName + "/GetChannelProfile"
)

type VerifyAccessRequest struct {
	AccessToken string `json:"accessToken"`
}

type VerifyAccessResponse struct {
	AccountID string `json:"accountId"`
	TokenID   string `json:"tokenId"`
	ExpiresAt int64  `json:"expiresAt"`
}

type GetAccountRequest struct {
	AccountID string `json:"accountId"`
}

type Account struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	AvatarURL     string `json:"avatar"`
	CoverImageURL string `json:"coverImage,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

type GetChannelProfileRequest struct {
	Username string `json:"username"`
	// ViewerID is empty for anonymous viewers.
	ViewerID string `json:"viewerId,omitempty"`
}

type ChannelProfile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatar"`
	CoverImageURL     string `json:"coverImage,omitempty"`
	SubscribersCount  int64  `json:"subscribersCount"`
	SubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// SessionServer lets sibling services check caller sessions and read
// account data without going through the public HTTP API.
type SessionServer interface {
	VerifyAccess(context.Context, *VerifyAccessRequest) (*VerifyAccessResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*Account, error)
	GetChannelProfile(context.Context, *GetChannelProfileRequest) (*ChannelProfile, error)
}

func RegisterSessionServer(s ggrpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

var sessionServiceDesc = ggrpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []ggrpc.MethodDesc{
		{MethodName: "VerifyAccess", Handler: verifyAccessHandler},
		{MethodName: "GetAccount", Handler: getAccountHandler},
		{MethodName: "GetChannelProfile", Handler: getChannelProfileHandler},
	},
	Streams:  []ggrpc.StreamDesc{},
	Metadata: "account/v1/session",
}

func verifyAccessHandler(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyAccessRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).VerifyAccess(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: verifyAccessMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServer).VerifyAccess(ctx, req.(*VerifyAccessRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).GetAccount(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: getAccountMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServer).GetAccount(ctx, req.(*GetAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getChannelProfileHandler(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
	in := new(GetChannelProfileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServer).GetChannelProfile(ctx, in)
	}
	info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: getChannelProfileMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServer).GetChannelProfile(ctx, req.(*GetChannelProfileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionClient is the caller side of SessionServer.
type SessionClient struct {
	cc ggrpc.ClientConnInterface
}

func NewSessionClient(cc ggrpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func (c *SessionClient) VerifyAccess(ctx context.Context, in *VerifyAccessRequest, opts ...ggrpc.CallOption) (*VerifyAccessResponse, error) {
	out := new(VerifyAccessResponse)
	if err := c.cc.Invoke(ctx, verifyAccessMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...ggrpc.CallOption) (*Account, error) {
	out := new(Account)
	if err := c.cc.Invoke(ctx, getAccountMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionClient) GetChannelProfile(ctx context.Context, in *GetChannelProfileRequest, opts ...ggrpc.CallOption) (*ChannelProfile, error) {
	out := new(ChannelProfile)
	if err := c.cc.Invoke(ctx, getChannelProfileMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []ggrpc.CallOption) []ggrpc.CallOption {
	return append([]ggrpc.CallOption{ggrpc.CallContentSubtype(CodecName)}, opts...)
}
