// Command sgdemo exercises a storage group coordinator end to end:
// insert ten rows for one device, run a query over them, and close the
// group, removing its temporary data root on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsfiledb/storagegroup/internal/directories"
	"github.com/tsfiledb/storagegroup/internal/metadata"
	"github.com/tsfiledb/storagegroup/internal/storagegroup"
	"github.com/tsfiledb/storagegroup/internal/storagestate"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root, err := os.MkdirTemp("", "sgdemo-*")
	if err != nil {
		logrus.WithError(err).Fatal("create demo data root")
	}
	defer os.RemoveAll(root)

	state := storagestate.NewHolder()
	rotator := directories.New([]string{root}, 0, func(string) (uint64, error) {
		return 1 << 40, nil
	}, state)
	md := metadata.New()

	proc, err := storagegroup.New("root.demo", filepath.Join(root, "system"), rotator, md,
		storagegroup.WithPartitionInterval(24*time.Hour),
		storagegroup.WithDataTTL(0),
		storagegroup.WithMergeFileStrategy(storagegroup.MaxFileNum),
	)
	if err != nil {
		logrus.WithError(err).Fatal("construct storage group processor")
	}

	now := time.Now().UnixMilli()
	for i := int64(0); i < 10; i++ {
		if err := proc.Insert("device1", "temperature", now+i*1000, float64(20)+float64(i)*0.1); err != nil {
			logrus.WithError(err).Fatal("insert row")
		}
	}

	snap := proc.Query("device1", "temperature", storagegroup.RangeTimeFilter{Start: now, End: now + 100000})
	fmt.Printf("query snapshot: %d sequential files, %d unsequential files, %d hybrid buffers\n",
		len(snap.Sequential), len(snap.Unsequential), len(snap.Hybrids))
	proc.Release(snap)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Close(ctx); err != nil {
		logrus.WithError(err).Fatal("close storage group processor")
	}

	fmt.Println("demo complete")
}
