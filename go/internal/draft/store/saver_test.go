package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/store/mocks"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testSaverConfig() SaverConfig {
	cfg := DefaultSaverConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	return cfg
}

func TestSaverCoalescesToLatestVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	id := uuid.New()

	st.EXPECT().SaveDraft(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d *models.Draft) error {
		assert.Equal(t, int64(3), d.Version)
		return nil
	}).Times(1)

	s := NewSaver(st, testSaverConfig())
	for v := int64(1); v <= 3; v++ {
		s.Save(&models.Draft{ID: id, Version: v})
	}
	// an older snapshot arriving late does not replace the queued one
	s.Save(&models.Draft{ID: id, Version: 2})
	s.Flush(context.Background())
}

func TestSaverRetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		st.EXPECT().SaveDraft(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")),
		st.EXPECT().SaveDraft(gomock.Any(), gomock.Any()).Return(nil),
	)

	s := NewSaver(st, testSaverConfig())
	s.Save(&models.Draft{ID: uuid.New(), Version: 1})
	s.Flush(context.Background())
}

func TestSaverRequeuesAfterExhaustingRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	d := &models.Draft{ID: uuid.New(), Version: 1}

	st.EXPECT().SaveDraft(gomock.Any(), d).Return(errors.New("down")).Times(3)
	s := NewSaver(st, testSaverConfig())
	s.Save(d)
	s.Flush(context.Background())

	st.EXPECT().SaveDraft(gomock.Any(), d).Return(nil)
	s.Flush(context.Background())
}

func TestSaverRunFlushesOnShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	var mu sync.Mutex
	saved := map[uuid.UUID]int64{}
	st.EXPECT().SaveDraft(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d *models.Draft) error {
		mu.Lock()
		saved[d.ID] = d.Version
		mu.Unlock()
		return nil
	}).AnyTimes()

	s := NewSaver(st, testSaverConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	a, b := uuid.New(), uuid.New()
	s.Save(&models.Draft{ID: a, Version: 1})
	s.Save(&models.Draft{ID: b, Version: 7})
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[uuid.UUID]int64{a: 1, b: 7}, saved)
}
