// Package grpcweb lets browsers reach the gRPC event service over HTTP/1.1.
// Requests use gRPC-Web framing with JSON message bodies.
package grpcweb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tzscheduler/internal/middleware"
	"tzscheduler/internal/rpc"
)

const (
	maxFrameBytes = 1 << 20
	trailerFlag   = 0x80
	contentType   = "application/grpc-web+json"
)

// Bridge forwards gRPC-Web calls to a gRPC connection, byte for byte.
type Bridge struct {
	conn grpc.ClientConnInterface
	log  *slog.Logger
}

func New(conn grpc.ClientConnInterface, logger *slog.Logger) *Bridge {
	return &Bridge{conn: conn, log: logger}
}

// Handler serves POST /scheduler.v1.EventService/<Method>.
func (b *Bridge) Handler(origins []string) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web") {
			http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/"+rpc.ServiceName+"/") {
			writeStatus(w, codes.Unimplemented, "unknown service")
			return
		}
		b.forward(w, r)
	})
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Grpc-Web", "X-User-Agent"},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message"},
		MaxAge:         86400,
	})(h)
}

func (b *Bridge) forward(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		writeStatus(w, codes.InvalidArgument, "request too large")
		return
	}
	payload, err := unframe(body)
	if err != nil {
		writeStatus(w, codes.InvalidArgument, err.Error())
		return
	}

	md := metadata.MD{}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		md.Set("authorization", vals...)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		md.Set(middleware.ForwardedForKey, host)
	}
	ctx := metadata.NewOutgoingContext(r.Context(), md)

	resp := &rawMsg{}
	if err := b.conn.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, resp, grpc.ForceCodec(rawCodec{})); err != nil {
		st := status.Convert(err)
		if st.Code() == codes.Internal || st.Code() == codes.Unavailable {
			b.log.ErrorContext(r.Context(), "grpc-web call failed", "method", r.URL.Path, "code", st.Code().String(), "err", st.Message())
		}
		writeStatus(w, st.Code(), st.Message())
		return
	}
	writeMessage(w, resp.data)
}

// unframe returns the payload of the first data frame: 1 flag byte, a 4 byte
// big-endian length, then the message.
func unframe(body []byte) ([]byte, error) {
	if len(body) < 5 {
		return nil, errors.New("body too short")
	}
	if body[0]&trailerFlag != 0 {
		return nil, errors.New("expected a data frame")
	}
	n := binary.BigEndian.Uint32(body[1:5])
	if uint64(n)+5 > uint64(len(body)) {
		return nil, errors.New("incomplete frame")
	}
	return body[5 : 5+n], nil
}

func frame(flag byte, data []byte) []byte {
	out := make([]byte, 5+len(data))
	out[0] = flag
	binary.BigEndian.PutUint32(out[1:5], uint32(len(data)))
	copy(out[5:], data)
	return out
}

func trailer(code codes.Code, msg string) []byte {
	t := fmt.Sprintf("grpc-status:%d\r\n", code)
	if msg != "" {
		t += "grpc-message:" + strings.NewReplacer("\r", " ", "\n", " ").Replace(msg) + "\r\n"
	}
	return frame(trailerFlag, []byte(t))
}

func writeStatus(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trailer(code, msg))
}

func writeMessage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame(0, data))
	_, _ = w.Write(trailer(codes.OK, ""))
}

// rawMsg carries already-encoded JSON.
type rawMsg struct{ data []byte }

// rawCodec passes bytes through. Its name makes the server decode them with
// the JSON codec.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) { return v.(*rawMsg).data, nil }

func (rawCodec) Unmarshal(data []byte, v any) error {
	v.(*rawMsg).data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return rpc.CodecName }
