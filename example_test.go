package rpc_test

import (
	"context"
	"log"

	rpc "github.com/rsocket/rpc-go"
)

func ExampleReceive() {
	s := rpc.Receive().
		OnConnect(func(peer rpc.Peer) {
			_ = peer.Notify("welcome", []byte(peer.ID()))
		}).
		Transport("tcp://127.0.0.1:7878")
	_ = s.Method("echo", func(ctx context.Context, peer rpc.Peer, payload []byte) ([]byte, error) {
		return payload, nil
	})
	if err := s.Serve(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func ExampleConnect() {
	c, err := rpc.Connect().
		Encoding(rpc.EncodingText).
		Strategy(rpc.StrategyRetry).
		Transport("ws://127.0.0.1:8080/rpc").
		Start(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()
	c.Subscribe("welcome", func(op string, payload []byte) {
		log.Println("welcome:", string(payload))
	})
	resp, err := c.Call(context.Background(), "echo", []byte("hello"))
	if err != nil {
		log.Fatal(err)
	}
	log.Println(string(resp))
}
