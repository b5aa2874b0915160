package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/graphstack/pkg/eventstream"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = newPublisher(w, Config{Topic: "saves"})
	})

	It("requires brokers", func() {
		_, err := NewPublisher(Config{})
		Expect(err).To(HaveOccurred())
	})

	It("builds a writer for the default topic", func() {
		pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.topic).To(Equal(DefaultTopic))
		Expect(pub.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(p.PublishSave(context.Background(), nil)).To(MatchError(eventstream.ErrNilSaveEvent))
	})

	It("keys messages by source context", func() {
		ev := &eventstream.SavePersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeSavePersisted,
			EventID:       "evt_1",
			Source:        eventstream.EventSource{Context: "main"},
		}
		Expect(p.PublishSave(context.Background(), ev)).To(Succeed())

		Expect(w.msgs).To(HaveLen(1))
		Expect(string(w.msgs[0].Key)).To(Equal("main"))

		var got eventstream.SavePersistedEvent
		Expect(json.Unmarshal(w.msgs[0].Value, &got)).To(Succeed())
		Expect(got.EventID).To(Equal("evt_1"))
		Expect(w.msgs[0].Headers).To(ContainElement(kafkago.Header{
			Key: "event_type", Value: []byte(eventstream.EventTypeSavePersisted),
		}))
	})

	It("wraps writer failures", func() {
		w.err = errors.New("broker down")
		err := p.PublishSave(context.Background(), &eventstream.SavePersistedEvent{EventID: "evt_2"})
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
