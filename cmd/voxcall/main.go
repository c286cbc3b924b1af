package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
	"github.com/voxbridge/voxbridge/internal/client"
	"github.com/voxbridge/voxbridge/internal/protocol"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:3001/ws", "relay websocket URL")
		fullName  = flag.String("name", "", "caller full name")
		phone     = flag.String("phone", "", "caller phone number")
		voice     = flag.String("voice", "", "agent voice (server default if empty)")
		system    = flag.String("system", "", "system instruction override")
		recordTo  = flag.String("record", "", "write agent audio to this WAV file on exit")
	)
	flag.Parse()

	if *fullName == "" || *phone == "" {
		fmt.Fprintln(os.Stderr, "usage: voxcall -name \"Jane Doe\" -phone \"+15551234567\" [-server URL] [-voice NAME] [-record out.wav]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	transport, err := client.DialTransport(ctx, *serverURL)
	cancel()
	if err != nil {
		log.Fatalf("connect to relay: %v", err)
	}

	mic, err := newFFmpegMicSource()
	if err != nil {
		log.Fatalf("open microphone: %v", err)
	}

	player, err := newFFplayPlayer(*recordTo != "")
	if err != nil {
		mic.Close()
		log.Fatalf("open playback: %v", err)
	}
	defer player.Close()

	loop := client.NewLoop(transport, mic, player, client.Hooks{
		OnStatus: func(s protocol.Status) {
			fmt.Printf("[%s]\n", s)
		},
		OnTranscript: func(entries []client.TranscriptEntry) {
			for _, e := range entries {
				fmt.Printf("%s %s: %s\n", e.At.Format("15:04:05"), e.Role, e.Text)
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "call error: %v\n", err)
		},
	})

	cfg := client.Config{
		FullName:          *fullName,
		PhoneNumber:       *phone,
		SystemInstruction: *system,
		Voice:             *voice,
	}
	if err := loop.Start(cfg); err != nil {
		log.Fatalf("start call: %v", err)
	}
	fmt.Println("call started, press Ctrl-C to hang up")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		loop.Hangup()
		<-loop.Done()
	case <-loop.Done():
	}

	if *recordTo != "" {
		pcm := player.Recorded()
		if len(pcm) == 0 {
			log.Printf("nothing recorded, skipping %s", *recordTo)
		} else if err := audiocodec.WriteWAVPCM16LEFile(*recordTo, pcm, client.PlaybackSampleRate); err != nil {
			log.Printf("write recording: %v", err)
		} else {
			log.Printf("agent audio written to %s", *recordTo)
		}
	}
}
