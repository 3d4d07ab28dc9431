package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kgourjau/BridgeAI/pkg/storage"
	"github.com/kgourjau/BridgeAI/pkg/storage/inmemory"
	"github.com/kgourjau/BridgeAI/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverBehavior(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("stores copies of the entries", func() {
		ctx := context.Background()
		driver := inmemory.NewDriver()

		e := storage.NewEntry("req", storage.RoleUser, "user", "original")
		Expect(driver.Put(ctx, e)).To(Succeed())
		e.Message = "edited"

		got, err := driver.Get(ctx, e.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Message).To(Equal("original"))
	})
})
