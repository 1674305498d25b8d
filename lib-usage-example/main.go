package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/guestkiosk/guestkiosk/pkg/gateway"
	"github.com/guestkiosk/guestkiosk/pkg/store"
)

func main() {
	// Usage: go run main.go -db guestbook.sqlite -upstream http://localhost:9000

	dbFlag := flag.String("db", "guestbook.sqlite", "database path")
	upstreamFlag := flag.String("upstream", "", "upstream origin hosting the app shell")

	flag.Parse()

	st, err := store.Open(*dbFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	id, err := st.SaveEntry(ctx, store.NewEntry{
		Name:      "Example Visitor",
		Signature: store.BlobToDataURL([]byte{0x89, 0x50, 0x4e, 0x47}),
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("saved entry", id)

	entries, err := st.GetAllEntries(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.ID, e.Name, e.Timestamp)
	}

	if *upstreamFlag == "" {
		return
	}

	// The gateway is a plain http.Handler; mount it wherever you like.
	u, err := url.Parse(*upstreamFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	gw, err := gateway.New(gateway.Config{
		Upstream: u,
		CacheDir: "gateway-cache",
		Manifest: gateway.Manifest{
			Version: 1,
			Shell:   "/index.html",
			Assets:  []string{"/", "/index.html"},
		},
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := gw.Install(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := gw.Activate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("serving offline-capable shell on :8080")
	if err := http.ListenAndServe(":8080", gw); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
