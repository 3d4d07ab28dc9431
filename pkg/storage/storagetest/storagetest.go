// Package storagetest holds the behaviour every storage.Driver must share.
// Driver test suites call DriverBehavior inside their Describe block.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kgourjau/BridgeAI/pkg/storage"
)

// entryAt builds a user entry with a fixed timestamp.
func entryAt(msg string, ts time.Time) *storage.Entry {
	e := storage.NewEntry("req-"+msg, storage.RoleUser, "user", msg)
	e.Timestamp = ts
	return e
}

func messages(entries []*storage.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

// DriverBehavior registers the shared driver specs. newDriver is called
// before each spec and the returned driver is closed after it.
func DriverBehavior(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver == nil {
			return
		}
		Expect(driver.Close()).To(Succeed())
	})

	Describe("Put and Get", func() {
		It("round trips an entry", func() {
			e := storage.NewEntry("req-1", storage.RoleAssistant, "AI (https://api.groq.com/openai/v1)", "Hello there")
			Expect(driver.Put(ctx, e)).To(Succeed())

			got, err := driver.Get(ctx, e.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(e.ID))
			Expect(got.RequestID).To(Equal("req-1"))
			Expect(got.Role).To(Equal(storage.RoleAssistant))
			Expect(got.Source).To(Equal("AI (https://api.groq.com/openai/v1)"))
			Expect(got.Message).To(Equal("Hello there"))
			Expect(got.Timestamp).To(BeTemporally("~", e.Timestamp, time.Millisecond))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("rejects nil entries", func() {
			err := driver.Put(ctx, entryAt("a", base), nil)
			Expect(err).To(MatchError(storage.ErrNilEntry))

			entries, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("accepts an empty batch", func() {
			Expect(driver.Put(ctx)).To(Succeed())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			Expect(driver.Put(ctx,
				entryAt("one", base),
				entryAt("two", base.Add(time.Second)),
			)).To(Succeed())
			Expect(driver.Put(ctx, entryAt("three", base.Add(2*time.Second)))).To(Succeed())
		})

		It("returns every entry oldest first", func() {
			entries, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages(entries)).To(Equal([]string{"one", "two", "three"}))
		})

		It("keeps the most recent entries when limited", func() {
			entries, err := driver.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages(entries)).To(Equal([]string{"two", "three"}))
		})

		It("keeps insertion order for equal timestamps", func() {
			Expect(driver.Put(ctx,
				entryAt("question", base.Add(time.Minute)),
				entryAt("answer", base.Add(time.Minute)),
			)).To(Succeed())

			entries, err := driver.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages(entries)).To(Equal([]string{"question", "answer"}))
		})
	})

	Describe("DeleteBefore", func() {
		It("removes only entries older than the cutoff", func() {
			Expect(driver.Put(ctx,
				entryAt("old", base.Add(-48*time.Hour)),
				entryAt("older", base.Add(-72*time.Hour)),
				entryAt("fresh", base),
			)).To(Succeed())

			n, err := driver.DeleteBefore(ctx, base.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			entries, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages(entries)).To(Equal([]string{"fresh"}))
		})

		It("reports zero when nothing is old enough", func() {
			Expect(driver.Put(ctx, entryAt("fresh", base))).To(Succeed())

			n, err := driver.DeleteBefore(ctx, base.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})
}
