package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/lpar/gzipped/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gsd-format/gsd/internal/addrfd"
	"github.com/gsd-format/gsd/internal/gsdenv"
)

const serveHelp = `gsd serve [-flags]

Serve a directory of .gsd files over HTTP for gsd fetch.

Example:
  ws % gsd serve -dir ~/gsd -listen :7080
  laptop % gsd fetch -base http://ws:7080 -name traj.gsd -output traj.gsd
`

// tcpKeepAliveListener is copied from net/http/server.go, which does not
// export it.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	return tc, nil
}

// gsdOnly wraps h so that only requests for a .gsd file (or its .gsd.gz
// sibling) are served; anything else 404s. Unlike a distri repository,
// which legitimately serves a whole tree of package and metadata file
// types from one directory, -dir here is documented as holding nothing
// but trajectory files, so a request for anything else is either a typo
// or an attempt to walk the directory looking for something else.
func gsdOnly(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(r.URL.Path, ".gz")
		if filepath.Ext(name) != ".gsd" {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// countGSDFiles reports how many top-level *.gsd files dir contains, for
// the readiness message addrfd.MustWrite sends.
func countGSDFiles(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*.gsd"))
	if err != nil {
		return 0
	}
	return len(matches)
}

func serve(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		listen = fset.String("listen", ":7080", "[host]:port listen address")
		gzip   = fset.Bool("gzip", true, "serve .gz siblings when present")
		dir    = fset.String("dir", gsdenv.Root, "directory of .gsd files to serve")
	)
	fset.Usage = usage(fset, serveHelp)
	fset.Parse(args)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	server := &http.Server{Addr: addr}
	log.Printf("serving %s on %s", *dir, addr)

	mux := http.NewServeMux()
	if *gzip {
		mux.Handle("/", gsdOnly(gzipped.FileServer(http.Dir(*dir))))
	} else {
		mux.Handle("/", gsdOnly(http.FileServer(http.Dir(*dir))))
	}
	server.Handler = mux

	addrfd.MustWrite(addr, countGSDFiles(*dir))

	var eg errgroup.Group
	eg.Go(func() error { return server.Serve(tcpKeepAliveListener{ln.(*net.TCPListener)}) })
	eg.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(ctx)
	})
	return eg.Wait()
}
