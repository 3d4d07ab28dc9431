package prunecmder_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	prunecmder "github.com/kgourjau/BridgeAI/cmd/bridge/prune"
	"github.com/kgourjau/BridgeAI/pkg/storage"
	"github.com/kgourjau/BridgeAI/pkg/storage/sqlite"
)

var _ = Describe("Prune command", func() {
	var (
		tmpDir  string
		origDir string
		dbPath  string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bridge-prune-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())

		dbPath = filepath.Join(tmpDir, "bridge.db")
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("rejects arguments", func() {
		cmd := prunecmder.NewPruneCmd()
		cmd.SetArgs([]string{"extra"})
		Expect(cmd.Execute()).NotTo(Succeed())
	})

	It("deletes entries older than --days", func() {
		ctx := context.Background()

		driver, err := sqlite.NewSQLiteDriver(dbPath)
		Expect(err).NotTo(HaveOccurred())

		old := storage.NewEntry("req-old", storage.RoleUser, storage.RoleUser, "old")
		old.Timestamp = time.Now().UTC().AddDate(0, 0, -10)
		fresh := storage.NewEntry("req-new", storage.RoleUser, storage.RoleUser, "new")
		Expect(driver.Put(ctx, old, fresh)).To(Succeed())
		Expect(driver.Close()).To(Succeed())

		out := &bytes.Buffer{}
		cmd := prunecmder.NewPruneCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--days", "7", "--sqlite", dbPath})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Pruning entries before"))
		Expect(out.String()).To(ContainSubstring("Deleted 1 entries"))

		driver, err = sqlite.NewSQLiteDriver(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		entries, err := driver.List(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Message).To(Equal("new"))
	})

	It("fails when the retention window is disabled", func() {
		cmd := prunecmder.NewPruneCmd()
		cmd.SetArgs([]string{"--days", "0", "--sqlite", dbPath})
		Expect(cmd.Execute()).NotTo(Succeed())
	})
})
