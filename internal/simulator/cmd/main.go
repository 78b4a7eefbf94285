package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/projectplant/etkc/internal/etkc"
	"github.com/projectplant/etkc/internal/model"
	"github.com/projectplant/etkc/internal/simulator"
	"github.com/projectplant/etkc/pkg/mqttx"
)

func main() {
	plantID := flag.String("plant-id", "plant1", "plant identifier")
	interval := flag.Duration("interval", time.Minute, "publish interval")
	demoHours := flag.Int("demo-hours", 0, "run the offline deterministic scenario for N hours and exit")
	host := flag.String("mqtt-host", "localhost", "MQTT broker host")
	port := flag.Int("mqtt-port", 1883, "MQTT broker port")
	user := flag.String("mqtt-user", "guest", "MQTT user")
	pass := flag.String("mqtt-password", "guest", "MQTT password")
	area := flag.Float64("area-m2", 0.0314, "pot opening area")
	depth := flag.Float64("depth-m", 0.25, "effective root depth")
	thetaFC := flag.Float64("theta-fc", 0.32, "field capacity")
	thetaWP := flag.Float64("theta-wp", 0.12, "wilting point")
	flag.Parse()

	if *demoHours > 0 {
		mae, err := etkc.RunDeterministicDemo(*demoHours)
		if err != nil {
			log.Fatalf("demo scenario failed: %v", err)
		}
		log.Printf("demo: %d hours, daily MAE modeled vs observed ET = %.4f mm", *demoHours, mae)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := mqttx.Connect(ctx, mqttx.Config{
		Host: *host, Port: *port, User: *user, Password: *pass,
		ClientID: fmt.Sprintf("ETKCSimulator-%s", *plantID),
	})
	if err != nil {
		log.Fatalf("MQTT connect failed: %v", err)
	}

	static := model.PotStatic{
		PotAreaM2: *area, DepthM: *depth, ThetaFC: *thetaFC, ThetaWP: *thetaWP, ClassName: "herb",
	}
	gen := simulator.NewGenerator(static, 0)
	pub := simulator.NewPublisher(mqttx.NewTransport(client), gen, *plantID)

	log.Printf("simulator: publishing %s every %s", *plantID, *interval)
	if err := pub.Start(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("simulator stopped: %v", err)
	}
}
