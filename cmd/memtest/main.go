// Command memtest prints heap figures while a bridge churns hosts and peers
// over loopback QUIC. Steady numbers after GC mean host teardown releases
// everything it allocated.
package main

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/quicnet"
)

const (
	churnRounds = 20
	serverPort  = 47100
)

func printStats(tag string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("%s: alloc=%d total=%d sys=%d heapAlloc=%d heapSys=%d stack=%d gcSys=%d otherSys=%d goroutines=%d\n",
		tag, m.Alloc, m.TotalAlloc, m.Sys, m.HeapAlloc, m.HeapSys, m.StackInuse, m.GCSys, m.OtherSys, runtime.NumGoroutine())
}

func churn(b *bridge.Bridge) error {
	server, err := b.CreateServer(serverPort, 4, 2)
	if err != nil {
		return err
	}
	defer b.DestroyHost(server)
	client, err := b.CreateClient(2)
	if err != nil {
		return err
	}
	defer b.DestroyHost(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peer, err := b.Connect(ctx, client, "127.0.0.1", serverPort)
	if err != nil {
		return err
	}
	payload := make([]byte, 4096)
	for i := 0; i < 32; i++ {
		if err := b.PeerSend(peer, uint8(i%2), payload, transport.FlagReliable); err != nil {
			return err
		}
	}
	if err := b.Flush(ctx, client); err != nil {
		return err
	}
	received := 0
	for received < 32 && ctx.Err() == nil {
		id, err := b.Service(server)
		if err != nil {
			return err
		}
		if id == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if ev, _ := b.Event(id); ev.Type == transport.EventReceive {
			received++
		}
	}
	return ctx.Err()
}

func main() {
	printStats("startup")
	network, err := quicnet.New()
	if err != nil {
		panic(err)
	}
	b, err := bridge.New(network, nil)
	if err != nil {
		panic(err)
	}
	printStats("after New")

	for i := 0; i < churnRounds; i++ {
		if err := churn(b); err != nil {
			panic(fmt.Errorf("round %d: %w", i, err))
		}
		if i == 0 {
			printStats("after first round")
		}
	}
	printStats(fmt.Sprintf("after %d rounds", churnRounds))
	runtime.GC()
	printStats("after GC")
	debug.FreeOSMemory()
	printStats("after FreeOSMemory")

	if err := b.Close(); err != nil {
		panic(err)
	}
	_ = network.Close()
	time.Sleep(100 * time.Millisecond)
	printStats("after Close")
}
