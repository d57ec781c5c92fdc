package events

import (
	"bytes"
	"context"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes successfully", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)

			err := kp.Write(context.TODO(), ResultMessageKind, bytes.NewReader([]byte(`{"result_id":"r1"}`)))
			Expect(err).To(BeNil())
			Eventually(w.count, "2s").Should(Equal(1))
			Expect(w.get(0).Context.GetType()).To(Equal(ResultMessageKind))
			Expect(w.get(0).Context.GetSource()).To(Equal("attribution.service"))

			err = kp.Write(context.TODO(), ResultMessageKind, bytes.NewReader([]byte(`{"result_id":"r2"}`)))
			Expect(err).To(BeNil())
			Eventually(w.count, "2s").Should(Equal(2))

			kp.Close()
		})

		It("sends on the configured topic", func() {
			w := newTestWriter()
			kp := NewEventProducer(w, WithOutputTopic("custom.topic"))

			err := kp.Write(context.TODO(), ResultMessageKind, bytes.NewReader([]byte(`{"result_id":"r1"}`)))
			Expect(err).To(BeNil())
			Eventually(w.count, "2s").Should(Equal(1))
			Expect(w.topics()).To(Equal([]string{"custom.topic"}))

			kp.Close()
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
	seen     []string
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, e)
	t.seen = append(t.seen, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}

func (t *testwriter) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) get(i int) cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages[i]
}

func (t *testwriter) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.seen...)
}
