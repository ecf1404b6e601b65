package service

import (
	"context"
	"sort"
	"sync"

	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/repository"
)

// fakeImageRepo — потокобезопасная in-memory реализация ImageRepository
// для тестов сервисного слоя.
type fakeImageRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []*model.ImageRecord

	// insertErr — если задана, Insert возвращает эту ошибку
	insertErr error
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{nextID: 1}
}

func (f *fakeImageRepo) Insert(_ context.Context, rec *model.ImageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, r := range f.records {
		if r.EntityType == rec.EntityType && r.EntityID == rec.EntityID &&
			r.Category == rec.Category && r.ImageID == rec.ImageID {
			return repository.ErrConflict
		}
	}
	rec.ID = f.nextID
	f.nextID++
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeImageRepo) GetByImageID(_ context.Context, imageID string) (*model.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ImageID == imageID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeImageRepo) List(_ context.Context, et model.EntityType, entityID int64, filters repository.ListFilters) ([]*model.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ImageRecord
	for _, r := range f.records {
		if r.EntityType != et || r.EntityID != entityID {
			continue
		}
		if filters.Category != nil && r.Category != *filters.Category {
			continue
		}
		if filters.Active != nil && r.Active != *filters.Active {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ImageID < out[j].ImageID
	})
	return out, nil
}

func (f *fakeImageRepo) GetMain(ctx context.Context, et model.EntityType, entityID int64) (*model.ImageRecord, error) {
	active := true
	list, err := f.List(ctx, et, entityID, repository.ListFilters{Active: &active})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return list[0], nil
}

func (f *fakeImageRepo) NextDisplayOrder(_ context.Context, et model.EntityType, entityID int64, c model.Category) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := 0
	for _, r := range f.records {
		if r.EntityType == et && r.EntityID == entityID && r.Category == c && r.DisplayOrder >= next {
			next = r.DisplayOrder + 1
		}
	}
	return next, nil
}

func (f *fakeImageRepo) ExistsMigrated(_ context.Context, et model.EntityType, entityID int64, c model.Category, imageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.EntityType == et && r.EntityID == entityID && r.Category == c && r.ImageID == imageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeImageRepo) Deactivate(_ context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ImageID == imageID && r.Active {
			r.Active = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeImageRepo) UpdateOrder(_ context.Context, imageID string, order int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ImageID == imageID && r.Active {
			r.DisplayOrder = order
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeImageRepo) SetMain(_ context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var target *model.ImageRecord
	for _, r := range f.records {
		if r.ImageID == imageID && r.Active {
			target = r
			break
		}
	}
	if target == nil {
		return repository.ErrNotFound
	}
	for _, r := range f.records {
		if r.EntityType == target.EntityType && r.EntityID == target.EntityID && r.Active {
			r.DisplayOrder++
		}
	}
	target.DisplayOrder = 0
	return nil
}
