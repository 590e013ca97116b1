package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
)

// LoopbackFlow runs the installed-app authorization code flow. It listens on
// a random localhost port, opens the browser to the consent screen and
// captures the code from the redirect.
func LoopbackFlow(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on localhost: %w", err)
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		listener.Close()
		return nil, fmt.Errorf("generate state: %w", err)
	}

	return runCallbackServer(ctx, cfg, listener, hex.EncodeToString(stateBytes), true)
}

// runCallbackServer waits for the OAuth redirect on listener and exchanges
// the authorization code for a token.
func runCallbackServer(ctx context.Context, base *oauth2.Config, listener net.Listener, state string, showBrowser bool) (*oauth2.Token, error) {
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	cfg := *base
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	if showBrowser {
		authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintf(os.Stderr, "\nOpening browser to authorize Gmail access...\n\n")
		fmt.Fprintf(os.Stderr, "If the browser doesn't open, visit this URL:\n\n  %s\n\n", authURL)
		openBrowser(authURL)
	}

	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)
	// Only the first callback counts; later ones must not block the handler.
	deliver := func(r result) {
		select {
		case ch <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			return
		}

		if errParam := r.URL.Query().Get("error"); errParam != "" {
			http.Error(w, "Authorization denied: "+errParam, http.StatusForbidden)
			deliver(result{err: fmt.Errorf("authorization denied: %s", errParam)})
			return
		}

		if r.URL.Query().Get("state") != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			deliver(result{err: fmt.Errorf("state mismatch")})
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "No authorization code", http.StatusBadRequest)
			deliver(result{err: fmt.Errorf("no authorization code in callback")})
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h2>Authorization successful!</h2><p>You can close this tab.</p></body></html>")
		deliver(result{code: code})
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(listener)

	var res result
	select {
	case <-ctx.Done():
		srv.Close()
		return nil, ctx.Err()
	case res = <-ch:
	}

	// Shutdown flushes the handler's response before the connection closes.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)

	if res.err != nil {
		return nil, res.err
	}
	token, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("exchange code for token: %w", err)
	}
	return token, nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return
	}
	cmd.Start()
}
