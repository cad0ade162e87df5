// Command ikenegotiate drives one IKE_SA_INIT exchange against a peer, either
// as initiator or as a responder listening for one incoming negotiation.
package main

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/msgboxio/ike"
	"github.com/msgboxio/ike/ikeinit"
)

func main() {
	var (
		listen      = flag.StringP("listen", "l", ":5000", "local udp address to bind")
		remote      = flag.StringP("remote", "r", "", "peer udp address (initiator mode only)")
		configFile  = flag.StringP("config", "c", "", "path to a yaml policy file (defaults built in if omitted)")
		responder   = flag.BoolP("responder", "d", false, "wait for an incoming IKE_SA_INIT instead of initiating")
		timeout     = flag.DurationP("timeout", "t", 10*time.Second, "overall exchange deadline")
		logLevel    = flag.StringP("log-level", "v", "info", "debug, info, warn, or error")
	)
	flag.Parse()

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg := ike.DefaultConfig()
	if *configFile != "" {
		loaded, err := ike.LoadConfigFile(*configFile)
		if err != nil {
			log.Fatal("load config", "err", err)
		}
		cfg = loaded
	}

	conn, err := ike.Listen("udp", *listen)
	if err != nil {
		log.Fatal("listen", "err", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *responder {
		if err := runResponder(ctx, conn, cfg); err != nil {
			log.Fatal("responder", "err", err)
		}
		return
	}

	if *remote == "" {
		log.Fatal("initiator mode requires --remote")
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", *remote)
	if err != nil {
		log.Fatal("resolve remote", "err", err)
	}
	if err := runInitiator(ctx, conn, cfg, remoteAddr); err != nil {
		log.Fatal("initiator", "err", err)
	}
}

func runInitiator(ctx context.Context, conn ike.Conn, cfg *ike.Config, remote net.Addr) error {
	sess, err := ike.NewInitiator(ctx, conn.LocalAddr(), remote, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	for {
		msg, status, err := sess.BuildInit()
		if err != nil {
			return err
		}
		if err := conn.WritePacket(msg.Raw, remote); err != nil {
			return err
		}
		if status == ikeinit.StatusSuccess {
			log.Info("ike_sa_init complete", "spiI", sess.SpiI(), "spiR", sess.SpiR())
			return nil
		}

		reply, err := readFrom(conn, remote)
		if err != nil {
			return err
		}
		status, err = sess.ProcessInit(reply)
		if err != nil {
			return err
		}
		if status == ikeinit.StatusSuccess {
			log.Info("ike_sa_init complete", "spiI", sess.SpiI(), "spiR", sess.SpiR())
			return nil
		}
	}
}

// runResponder waits for one incoming IKE_SA_INIT request and drives it to
// completion, replying from the same conn.
func runResponder(ctx context.Context, conn ike.Conn, cfg *ike.Config) error {
	log.Info("waiting for IKE_SA_INIT", "local", conn.LocalAddr())
	msg, err := ike.ReadMessage(conn)
	if err != nil {
		return err
	}

	sess := ike.NewResponder(ctx, conn.LocalAddr(), msg.RemoteAddr, cfg, nil)
	defer sess.Close()

	for {
		if _, err := sess.ProcessInit(msg); err != nil {
			return err
		}
		reply, status, err := sess.BuildInit()
		if err != nil {
			return err
		}
		if err := conn.WritePacket(reply.Raw, msg.RemoteAddr); err != nil {
			return err
		}
		if status == ikeinit.StatusSuccess {
			log.Info("ike_sa_init complete", "spiI", sess.SpiI(), "spiR", sess.SpiR())
			return nil
		}

		msg, err = readFrom(conn, msg.RemoteAddr)
		if err != nil {
			return err
		}
	}
}

func readFrom(conn ike.Conn, want net.Addr) (*ike.Message, error) {
	for {
		msg, err := ike.ReadMessage(conn)
		if err != nil {
			return nil, err
		}
		if msg.RemoteAddr.String() != want.String() {
			continue
		}
		return msg, nil
	}
}
