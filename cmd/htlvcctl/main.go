package main

import (
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/htlvc/internal/logging"
	"github.com/danmuck/htlvc/internal/transport"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7420", "device stream address")
	wsURL := flag.String("ws", "", "device websocket url (overrides -addr)")
	tagRaw := flag.String("tag", "0x01", "command tag")
	valueRaw := flag.String("value", "", "command value as hex")
	nestedRaw := flag.String("nested", "", "nested sub-records as tag=hex,tag=hex")
	timeout := flag.Duration("timeout", 2*time.Second, "dial and response timeout")
	follow := flag.Bool("follow", false, "keep printing reports until timeout")
	useTLS := flag.Bool("tls", false, "dial the stream address over tls")
	caFile := flag.String("ca", "", "tls ca bundle")
	certFile := flag.String("cert", "", "tls client certificate")
	keyFile := flag.String("key", "", "tls client key")
	serverName := flag.String("server-name", "", "tls server name")
	flag.Parse()

	logging.ConfigureRuntime()

	var tlsCfg *tls.Config
	if *useTLS {
		cfg, err := transport.ClientConfig(*caFile, *certFile, *keyFile, *serverName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "htlvcctl: %v\n", err)
			os.Exit(1)
		}
		tlsCfg = cfg
	}
	if err := run(*addr, *wsURL, *tagRaw, *valueRaw, *nestedRaw, *timeout, *follow, tlsCfg); err != nil {
		fmt.Fprintf(os.Stderr, "htlvcctl: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, wsURL, tagRaw, valueRaw, nestedRaw string, timeout time.Duration, follow bool, tlsCfg *tls.Config) error {
	tag, err := parseTag(tagRaw)
	if err != nil {
		return err
	}
	value, err := hex.DecodeString(valueRaw)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	nested, err := parseNested(nestedRaw)
	if err != nil {
		return err
	}
	cmd, err := buildCommand(tag, value, nested)
	if err != nil {
		return err
	}

	var x exchanger
	if wsURL != "" {
		x, err = dialWebSocket(wsURL, timeout)
	} else {
		x, err = dialStream(addr, timeout, tlsCfg)
	}
	if err != nil {
		return err
	}
	defer x.Close()

	log.Debug().Str("frame", hex.EncodeToString(cmd)).Msg("htlvcctl send")
	frames, err := exchange(x, cmd, timeout, follow)
	for _, fr := range frames {
		fmt.Println(describe(fr))
	}
	return err
}
