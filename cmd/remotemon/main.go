package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/robotalks/touchremote/pkg/env"
	"github.com/robotalks/touchremote/pkg/remote"
	"github.com/robotalks/touchremote/pkg/shadow"
)

var (
	busURL    = env.Default().BusURL
	shadowURL = env.Default().ShadowURL
	sessionID = remote.Default().SessionID
	deviceID  = remote.Default().DeviceID
)

func init() {
	flag.StringVar(&busURL, "bus", busURL, "Bus URL.")
	flag.StringVar(&shadowURL, "shadow", shadowURL, "Print heartbeat shadow from this Redis URL and exit.")
	flag.StringVar(&sessionID, "session", sessionID, "Session ID.")
	flag.StringVar(&deviceID, "device-id", deviceID, "Device ID of the shadow.")
}

func printShadow() {
	store, err := shadow.NewStore(shadowURL, 0)
	if err != nil {
		log.Fatalln(err)
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fields, err := store.Load(ctx, deviceID)
	if err != nil {
		log.Fatalln(err)
	}
	if len(fields) == 0 {
		log.Printf("%s: no shadow", shadow.Key(deviceID))
		return
	}
	for k, v := range fields {
		log.Printf("%s %s=%s", shadow.Key(deviceID), k, v)
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	if shadowURL != "" {
		printShadow()
		return
	}

	client, err := env.NewBusClient(busURL, env.ClientID(env.MachineID())+"-mon")
	if err != nil {
		log.Fatalln(err)
	}
	topics := remote.NewTopics(sessionID)
	client.Sub(topics.All(), func(topic string, payload []byte) {
		log.Printf("%s: %s", topic, string(payload))
	})
	token := client.Connect()
	if token.Wait(); token.Error() != nil {
		log.Fatalln(token.Error())
	}
	log.Printf("%s: watching %s", client.Name(), topics.All())
	<-(chan struct{})(nil)
}
