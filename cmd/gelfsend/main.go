// Command gelfsend sends one GELF message to a Graylog HTTP input.
//
//	gelfsend -config graylog.json -fallback-host backup.local "login failed" user=alice
//
// When the first attempt fails and a fallback host is given, the captured
// body is sent again to the fallback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	gelf "github.com/xykong/gelf-http"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath   = flag.String("config", "graylog.json", "path to a JSON or YAML client configuration")
		storeDir     = flag.String("store", "", "directory of PEM bundles searched for clientCertificateName")
		fallbackHost = flag.String("fallback-host", "", "host[:port] to resend to when the first attempt fails")
		full         = flag.String("full", "", "full message")
		timeout      = flag.Duration("timeout", 30*time.Second, "overall timeout")
		debug        = flag.Bool("debug", false, "log each attempt")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: gelfsend [flags] <short message> [key=value ...]")
		os.Exit(2)
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *configPath, *storeDir, *fallbackHost, *full, *timeout, flag.Args()); err != nil {
		logger.Error("gelfsend failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	conf := zap.NewProductionConfig()
	if debug {
		conf.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return conf.Build()
}

func run(logger *zap.Logger, configPath, storeDir, fallbackHost, full string, timeout time.Duration, args []string) error {
	conf, err := gelf.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err = conf.Validate(); err != nil {
		return err
	}

	options := []gelf.Option{
		gelf.WithLogger(logger),
		gelf.WithTLSErrorHandler(func(v *gelf.TLSValidationError) {
			logger.Warn("collector certificate rejected", zap.Error(v))
		}),
	}
	if storeDir != "" {
		options = append(options, gelf.WithCertificateStore(gelf.DirStore{Dir: storeDir}))
	}

	client, err := gelf.New(conf, options...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := client.SendFields(ctx, args[0], full, parseFields(args[1:]))

	var serr *gelf.SendError
	if errors.As(err, &serr) && fallbackHost != "" {
		logger.Warn("retrying on fallback host",
			zap.String("host", fallbackHost),
			zap.Stringer("correlation_id", serr.CorrelationID),
		)
		res, err = client.SendRaw(ctx, serr.MessageBody,
			gelf.WithCorrelationID(serr.CorrelationID),
			gelf.WithOverride(parseOverride(fallbackHost)),
		)
	}
	if err != nil {
		return err
	}

	logger.Info("message sent",
		zap.Stringer("correlation_id", res.CorrelationID),
		zap.Int("bytes", len(res.MessageBody)),
	)
	return nil
}

// parseOverride accepts "host" or "host:port".
func parseOverride(addr string) gelf.Override {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return gelf.Override{Host: addr}
	}
	port, _ := strconv.Atoi(portStr)
	return gelf.Override{Host: host, Port: port}
}

// parseFields turns key=value arguments into additional fields. Arguments
// without "=" are ignored.
func parseFields(args []string) gelf.Fields {
	fields := gelf.Fields{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			continue
		}
		fields[k] = v
	}
	return fields
}
