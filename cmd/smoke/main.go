// Smoke-checks the service's dependencies: redis, the facility API,
// kafka and the h3 library. Useful after bringing a compose stack up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	h3 "github.com/uber/h3-go/v4"

	"github.com/umarovb/agromap-core/internal/invalidation"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func testRedis(ctx context.Context, addr string) error {
	fmt.Println("Redis test")
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if err := client.Set(ctx, "smoke", "ok", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, err := client.Get(ctx, "smoke").Result()
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	fmt.Println("redis GET smoke: ", val)
	return nil
}

func testFacilityAPI(baseURL string) error {
	fmt.Println("Facility API test")

	u := strings.TrimRight(baseURL, "/") + "/healthz"
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("http get healthz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("healthz status %d: %s", resp.StatusCode, string(b))
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	fmt.Println("healthz:", strings.TrimSpace(string(body)))
	return nil
}

func fptr(f float64) *float64 { return &f }

func testKafka(brokers []string, topic string) error {
	fmt.Println("Kafka test")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	ev := invalidation.Event{
		Version:    1,
		Op:         "update",
		FacilityID: "smoke-facility",
		OrgID:      "smoke-org",
		Seq:        uint64(time.Now().UnixNano()),
		TS:         time.Now().UTC(),
		Lat:        fptr(41.3111),
		Lng:        fptr(69.2797),
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("event validate: %w", err)
	}

	msgBytes, _ := json.Marshal(ev)
	_, _, err = prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic, Value: sarama.ByteEncoder(msgBytes),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Println("produced one facility event")

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("consumer create: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	pc, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		pc, err = consumer.ConsumePartition(topic, 0, sarama.OffsetOldest)
		if err != nil {
			return fmt.Errorf("consume partition: %w", err)
		}
	}
	defer func() { _ = pc.Close() }()

	select {
	case m := <-pc.Messages():
		fmt.Println("consumed:", string(m.Value))
	case <-time.After(5 * time.Second):
		fmt.Println("no message consumed (timeout)")
	}

	return nil
}

func demoH3() {
	fmt.Println("H3 demo")
	// Tashkent city center
	ll := h3.NewLatLng(41.3111, 69.2797)
	cell, err := h3.LatLngToCell(ll, 8)
	if err != nil {
		fmt.Println("H3 error:", err)
		return
	}
	neighbors, err := h3.GridDisk(cell, 1)
	if err != nil {
		fmt.Println("H3 error:", err)
		return
	}
	fmt.Printf("H3 center: %s, neighbors: %d\n", cell.String(), len(neighbors))
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	apiURL := getenv("FACILITY_API_URL", "http://localhost:8090")
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_TOPIC", "facility-events")

	if err := testRedis(ctx, redisAddr); err != nil {
		fmt.Println("Redis error:", err)
		return
	}
	if err := testFacilityAPI(apiURL); err != nil {
		fmt.Println("Facility API error:", err)
		return
	}
	if err := testKafka(brokers, topic); err != nil {
		fmt.Println("Kafka error:", err)
		return
	}
	demoH3()
	fmt.Println("All checks completed")
}
