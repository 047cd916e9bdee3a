package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"retarget/internal/proxy"
	"retarget/linkfix"
)

func main() {
	cfg, err := proxy.DefaultConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	siteFlag := flag.String("site", cfg.Site, "site identifier; links not starting with it open in a new tab")
	baseFlag := flag.String("base", "", "url the input documents are served from, used to resolve relative links")
	injectFlag := flag.Bool("inject", false, "append the page script instead of rewriting anchors")
	outFlag := flag.String("o", "", "output file (default stdout, or in place for several inputs)")
	serveFlag := flag.Bool("serve", false, "run the rewriting proxy")
	addrFlag := flag.String("addr", ":8081", "listen address for -serve, e.g. :81 or 0.0.0.0:8081")
	modeFlag := flag.String("mode", cfg.Mode, "default proxy mode: static, inject or browser")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [file ...]\n       %s -serve [-addr :8081]\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	cfg.Site = *siteFlag
	cfg.Mode = *modeFlag
	if *serveFlag {
		addr := *addrFlag
		if env := os.Getenv("PORT"); env != "" {
			addr = ":" + env
		}
		log.SetOutput(os.Stdout)
		serve(cfg, addr)
		return
	}

	site, err := linkfix.ParseSite(cfg.Site)
	if err != nil {
		log.Fatalf("site: %v", err)
	}
	opt := linkfix.Options{Site: site, Inject: *injectFlag}
	if *baseFlag != "" {
		u, err := url.Parse(*baseFlag)
		if err != nil || !u.IsAbs() {
			log.Fatalf("base %q is not an absolute url", *baseFlag)
		}
		opt.Page = u
	}
	if err := rewriteFiles(flag.Args(), *outFlag, opt); err != nil {
		log.Fatal(err)
	}
}

func rewriteFiles(files []string, out string, opt linkfix.Options) error {
	if len(files) == 0 {
		return rewriteOne(os.Stdin, "-", out, opt)
	}
	if len(files) > 1 && out != "" {
		return fmt.Errorf("-o needs exactly one input, got %d", len(files))
	}
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		dst := out
		if len(files) > 1 {
			dst = name
		}
		err = rewriteOne(f, name, dst, opt)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func rewriteOne(r io.Reader, name, dst string, opt linkfix.Options) error {
	var buf bytes.Buffer
	st, err := linkfix.Rewrite(r, &buf, opt)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Printf("%s: %s", name, st)
	if dst == "" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".retarget-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if fi, err := os.Stat(dst); err == nil {
		_ = os.Chmod(tmp.Name(), fi.Mode().Perm())
	} else {
		_ = os.Chmod(tmp.Name(), 0o644)
	}
	return os.Rename(tmp.Name(), dst)
}

func serve(cfg proxy.Config, addr string) {
	cfg.Logger = log.Default()
	handler, err := proxy.New(cfg)
	if err != nil {
		log.Fatalf("proxy: %v", err)
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		// Conservative timeouts to avoid slowloris and leaked connections blocking the server
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
		ConnState: func(c net.Conn, s http.ConnState) {
			log.Printf("CONN %s %s", s.String(), c.RemoteAddr())
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Listen error on %s: %v", addr, err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down")
		srv.Close()
	}()

	log.Println("Listening on", addr, "site", cfg.Site)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("serve: %v", err)
	}
}
