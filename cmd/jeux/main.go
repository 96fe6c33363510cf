// Entry point.
//
// Grounded on go-kgp's main.go (flag.String/flag.Bool for -conf and
// -dump-config, toml.NewEncoder(os.Stdout).Encode for the dump path,
// a listen() goroutine accepting connections and spawning one
// goroutine per Client) and conf.go's start() (a signal channel drives
// a teardown sequence: stop accepting, tear down the web server,
// close the database, return).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jeux/config"
	"jeux/jserver"
	"jeux/ledger"
	"jeux/ops"
	"jeux/player"
	"jeux/session"
)

func main() {
	var (
		port       = flag.Uint("p", 0, "TCP listening port (required)")
		confFile   = flag.String("conf", config.DefaultConfName, "Name of configuration file")
		dumpConfig = flag.Bool("dump-config", false, "Dump default configuration to stdout and exit")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()
	if flag.NArg() != 0 {
		flag.Usage()
		os.Exit(1)
	}

	if *dumpConfig {
		if err := config.Dump(os.Stdout, &config.Default); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}

	conf, err := config.Load(*confFile)
	if err != nil {
		log.Fatal(err)
	}
	if *debug {
		conf.Debug = true
	}
	if *port != 0 {
		conf.TCP.Port = *port
	}
	if conf.TCP.Port == 0 {
		fmt.Fprintln(os.Stderr, "jeux: -p <port> is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := conf.Logger()

	players := player.NewRegistry()
	sessions := session.NewRegistry(conf.TCP.Capacity)
	if conf.Rating.K > 0 {
		sessions.RatingK = float64(conf.Rating.K)
	}

	var led *ledger.Ledger
	if conf.Ledger.Threads > 0 {
		led, err = ledger.Open(conf.Ledger.Threads, logger)
		if err != nil {
			log.Fatal(err)
		}
	}

	srv := jserver.New(sessions, players, led, logger)

	var opsSrv *ops.Server
	if conf.Ops.Enabled {
		opsSrv = ops.New(srv, time.Duration(conf.Ops.Interval)*time.Second, logger)
		go func() {
			if err := opsSrv.Serve(conf.Ops.Port); err != nil {
				logger.Print("ops: ", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", conf.TCP.Port))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("jeux: listening on :%d", conf.TCP.Port)

	accept := make(chan struct{})
	go acceptLoop(listener, srv, accept)

	// The Go runtime already turns a write to a closed peer into an
	// EPIPE error rather than a fatal SIGPIPE for socket descriptors;
	// ignoring it here just makes that explicit.
	signal.Ignore(syscall.SIGPIPE)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	select {
	case <-hup:
		log.Print("jeux: SIGHUP received, shutting down")
	case <-accept:
		log.Print("jeux: accept loop failed")
		os.Exit(1)
	}

	listener.Close()
	sessions.ShutdownAll()
	sessions.WaitForEmpty()
	_ = players.Finalize()
	if led != nil {
		led.Close()
	}
	if opsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = opsSrv.Shutdown(ctx)
		cancel()
	}

	os.Exit(0)
}

// acceptLoop runs Listener's accept loop, spawning one goroutine per
// connection, until Accept fails (including when Listener is closed
// as part of graceful shutdown, in which case FAILED is never read).
func acceptLoop(listener net.Listener, srv *jserver.Server, failed chan<- struct{}) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			close(failed)
			return
		}
		go srv.Serve(conn)
	}
}
