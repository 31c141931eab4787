package events

import (
	"bytes"
	"context"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

var _ = Describe("buffer", Ordered, func() {
	Context("buffer", func() {
		It("add successfully", func() {
			buffer := newBuffer()

			err := buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg1")})
			Expect(err).To(BeNil())
			Expect(buffer.Size()).To(Equal(1))

			err = buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg2")})
			Expect(err).To(BeNil())
			Expect(buffer.Size()).To(Equal(2))

			err = buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg3")})
			Expect(err).To(BeNil())
			Expect(buffer.Size()).To(Equal(3))
		})

		It("pop in fifo order", func() {
			buffer := newBuffer()

			err := buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg1")})
			Expect(err).To(BeNil())
			err = buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg2")})
			Expect(err).To(BeNil())
			err = buffer.PushBack(&message{Kind: JobMessageKind, Data: []byte("msg3")})
			Expect(err).To(BeNil())
			Expect(buffer.Size()).To(Equal(3))

			m := buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg1")))
			Expect(buffer.Size()).To(Equal(2))

			m = buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg2")))
			Expect(buffer.Size()).To(Equal(1))

			m = buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg3")))
			Expect(buffer.Size()).To(Equal(0))

			m = buffer.Pop()
			Expect(m).To(BeNil())
		})
	})
})

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("drains buffered messages to the writer", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)

			err := ep.Write(context.TODO(), JobMessageKind, bytes.NewReader([]byte("msg1")))
			Expect(err).To(BeNil())
			err = ep.Write(context.TODO(), JobMessageKind, bytes.NewReader([]byte("msg2")))
			Expect(err).To(BeNil())

			Eventually(w.count, "2s", "20ms").Should(Equal(2))
			Expect(w.events()[0].Type()).To(Equal(JobMessageKind))

			ep.Close()
		})

		It("stamps the configured topic", func() {
			w := newTestWriter()
			ep := NewEventProducer(w, WithOutputTopic("custom.topic"))

			err := ep.Write(context.TODO(), JobMessageKind, bytes.NewReader([]byte("msg")))
			Expect(err).To(BeNil())

			Eventually(w.count, "2s", "20ms").Should(Equal(1))
			Expect(w.topics()[0]).To(Equal("custom.topic"))

			ep.Close()
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	Messages []cloudevents.Event
	Topics   []string
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = append(t.Messages, e)
	t.Topics = append(t.Topics, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}

func (t *testwriter) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Messages)
}

func (t *testwriter) events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event{}, t.Messages...)
}

func (t *testwriter) topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.Topics...)
}
