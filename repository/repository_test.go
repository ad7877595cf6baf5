/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entorm/converter"
	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
	"github.com/tomoncle/entorm/validator"
)

func TestNew(t *testing.T) {
	reg := testEntities(t)

	_, err := New(nil, reg)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	t.Run("unknown converter key", func(t *testing.T) {
		odd := entity.Define("Odd", func() *tag { return &tag{} }).
			Prop(
				entity.Field("ID", func(t *tag) *int64 { return &t.ID }).Primary(),
				entity.Field("Name", func(t *tag) *string { return &t.Name }).Convert("rot13"),
			).MustBuild()
		oddReg, err := entity.NewRegistry(odd)
		require.NoError(t, err)

		repo := newTestRepository(t)
		_, err = New(repo.Adapter(), oddReg, WithLogger(database.NopLogger{}))
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann", Status: "active", Rank: 1}
	mustStore(t, repo, a)

	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, a, got)

	repo.Cache().Clear()
	first, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.NotSame(t, a, first)
	assert.Same(t, first, second)
	assert.Equal(t, a, first.(*author))

	coll, err := repo.All(ctx, "Author")
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())
	assert.Same(t, first, coll.At(0))
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Get(ctx, "Author", "nobody")
	var nf *types.EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Author", nf.Entity)

	e, err := repo.Try(ctx, "Author", "nobody")
	assert.NoError(t, err)
	assert.Nil(t, e)

	_, err = repo.Try(ctx, "Author", nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = repo.Get(ctx, "Ghost", 1)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestHydration(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann", Status: "active", Rank: 3}
	p := &post{Author: a, Title: "Hello", State: statusPublished, Tags: []string{"go", "orm"}}
	mustStore(t, repo, a, p)
	require.NotZero(t, p.ID)
	require.False(t, p.Created.IsZero())

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Post", p.ID)
	require.NoError(t, err)
	hp := got.(*post)

	assert.Equal(t, p.ID, hp.ID)
	assert.Equal(t, "Hello", hp.Title)
	assert.Equal(t, statusPublished, hp.State)
	assert.Equal(t, []string{"go", "orm"}, hp.Tags)
	assert.WithinDuration(t, p.Created, hp.Created, time.Microsecond)
	require.NotNil(t, hp.Author)
	assert.Equal(t, "Ann", hp.Author.Name)

	owner, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, owner, hp.Author)
}

func TestHydrationUnsetProperties(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	p := &post{Title: "Orphan"}
	mustStore(t, repo, p)

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Post", p.ID)
	require.NoError(t, err)
	hp := got.(*post)
	assert.Nil(t, hp.Author)
	assert.Nil(t, hp.Tags)
	assert.Equal(t, status(0), hp.State)
}

func TestConstructorAndGenerators(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	p := &post{Title: "T", State: statusDraft}
	c := &comment{Post: p, Body: "first!"}
	mustStore(t, repo, p, c)
	require.NotEmpty(t, c.ID)

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Comment", c.ID)
	require.NoError(t, err)
	hc := got.(*comment)
	assert.Equal(t, c.ID, hc.ID)
	assert.Equal(t, "first!", hc.Body)
	require.NotNil(t, hc.Post)
	assert.Equal(t, p.ID, hc.Post.ID)
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	p := &post{Title: "hooks"}
	mustStore(t, repo, p)
	assert.Equal(t, 1, p.creates)
	assert.Equal(t, 1, p.updates)

	p.Title = "hooks again"
	require.NoError(t, repo.Update(ctx, p))
	assert.Equal(t, 1, p.creates)
	assert.Equal(t, 2, p.updates)
}

func TestInsertWithoutPrimary(t *testing.T) {
	tags := entity.Define("Tag", func() *tag { return &tag{} }).
		Prop(
			entity.Field("ID", func(t *tag) *int64 { return &t.ID }).Primary().OmitZero(),
			entity.Field("Name", func(t *tag) *string { return &t.Name }),
		).MustBuild()
	reg, err := entity.NewRegistry(tags)
	require.NoError(t, err)
	repo, err := New(newTestRepository(t).Adapter(), reg, WithLogger(database.NopLogger{}))
	require.NoError(t, err)

	err = repo.Store(context.Background(), &tag{Name: "go"})
	var pv *types.PropertyValidationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "ID", pv.Property)
	assert.Equal(t, "primary", pv.Rule)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	err := repo.Store(ctx, &author{ID: "a1", Name: ""})
	var pv *types.PropertyValidationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "Name", pv.Property)
	assert.Equal(t, validator.RuleNotEmpty, pv.Rule)

	err = repo.Store(ctx, &author{ID: "a2", Name: "Annabelle"})
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, validator.RuleMaxLength, pv.Rule)

	n, err := repo.Find("Author", nil).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, repo.Cache().Len("Author"))

	err = repo.Store(ctx, &post{Title: "bad", State: status(9)})
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "State", pv.Property)
	assert.Equal(t, converter.KeyEnum, pv.Rule)
}

func TestCustomValidator(t *testing.T) {
	ctx := context.Background()
	strict := func(p *entity.PropConfig) validator.Validator {
		if p.Name == "Title" {
			return validator.Rules{MinLength: validator.Length(3)}
		}
		return p.Validation
	}
	repo := newTestRepository(t, WithValidator(strict))

	err := repo.Store(ctx, &post{Title: "no"})
	assert.ErrorIs(t, err, types.ErrPropertyValidation)
	assert.NoError(t, repo.Store(ctx, &post{Title: "yes"}))
}

func TestStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	good := &author{ID: "a1", Name: "Ann"}
	bad := &author{ID: "a2", Name: ""}
	err := repo.Store(ctx, good, bad)
	assert.ErrorIs(t, err, types.ErrPropertyValidation)

	got, err := repo.Try(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, repo.Adapter().InTxn())
}

func TestStoreDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	orig := &author{ID: "a1", Name: "Ann"}
	mustStore(t, repo, orig)

	other := &author{ID: "b1", Name: "Bob"}
	dup := &author{ID: "a1", Name: "Dup"}
	err := repo.Store(ctx, other, dup)
	assert.ErrorIs(t, err, types.ErrDatabase)

	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, orig, got)

	missing, err := repo.Try(ctx, "Author", "b1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann", Rank: 1}
	mustStore(t, repo, a)

	a.Name = "Anna"
	a.Rank = 7
	require.NoError(t, repo.Update(ctx, a))
	require.NoError(t, repo.Update(ctx, a))

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.(*author).Name)

	n, err := repo.Find("Author", types.Conditions{"Rank": 7}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = repo.Update(ctx, &author{ID: "zz", Name: "Zed"})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	err = repo.Update(ctx, &post{Title: "never stored"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestUpdateKeepsLoadedInstance(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	mustStore(t, repo, &author{ID: "a1", Name: "Ann"})

	repo.Cache().Clear()
	live, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)

	err = repo.Update(ctx, &author{ID: "a1", Name: "Bob"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	err = repo.Save(ctx, &author{ID: "a1", Name: "Cy"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, live, got)
	assert.Equal(t, "Ann", got.(*author).Name)

	repo.Cache().Clear()
	stored, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", stored.(*author).Name)

	// an instance nobody has loaded becomes the cached one
	repo.Cache().Clear()
	detached := &author{ID: "a1", Name: "Di"}
	require.NoError(t, repo.Update(ctx, detached))
	got, err = repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, detached, got)
}

func TestUpdateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a1 := &author{ID: "a1", Name: "Ann"}
	a2 := &author{ID: "a2", Name: "Bob"}
	mustStore(t, repo, a1, a2)

	a1.Name = "Anna"
	a2.Name = ""
	err := repo.Update(ctx, a1, a2)
	assert.ErrorIs(t, err, types.ErrPropertyValidation)
	assert.False(t, repo.Adapter().InTxn())

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.(*author).Name)
}

func TestSaveUpserts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann"}
	p := &post{Title: "new"}
	require.NoError(t, repo.Save(ctx, a, p))
	assert.NotZero(t, p.ID)
	assert.Equal(t, 1, p.creates)

	a.Name = "Anna"
	p.Title = "changed"
	require.NoError(t, repo.Save(ctx, a, p))
	assert.Equal(t, 1, p.creates)

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Post", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.(*post).Title)

	n, err := repo.Find("Post", nil).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann"}
	mustStore(t, repo, a)

	require.NoError(t, repo.DeleteEntity(ctx, a))
	got, err := repo.Try(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.Delete(ctx, "Author", "a1")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	err = repo.DeleteEntity(ctx, &post{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a1", Name: "Ann"}
	p1 := &post{Author: a, Title: "one"}
	p2 := &post{Author: a, Title: "two"}
	keep := &post{Title: "keep"}
	mustStore(t, repo, a, p1, p2, keep)
	c1 := &comment{Post: p1, Body: "x"}
	c2 := &comment{Post: p2, Body: "y"}
	mustStore(t, repo, c1, c2)

	require.NoError(t, repo.Delete(ctx, "Author", "a1"))

	posts, err := repo.All(ctx, "Post")
	require.NoError(t, err)
	require.Equal(t, 1, posts.Len())
	assert.Same(t, keep, posts.At(0))

	n, err := repo.Find("Comment", nil).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, repo.Cache().Len("Comment"))

	_, err = repo.Get(ctx, "Comment", c1.ID)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestDeleteSelfReference(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	root := &category{ID: 1, Name: "root"}
	child := &category{ID: 2, Parent: root, Name: "child"}
	leaf := &category{ID: 3, Parent: child, Name: "leaf"}
	other := &category{ID: 4, Name: "other"}
	mustStore(t, repo, root, child, leaf, other)

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Category", 3)
	require.NoError(t, err)
	assert.Equal(t, "root", got.(*category).Parent.Parent.Name)

	require.NoError(t, repo.Delete(ctx, "Category", 1))
	left, err := repo.All(ctx, "Category")
	require.NoError(t, err)
	require.Equal(t, 1, left.Len())
	assert.Equal(t, int64(4), left.At(0).(*category).ID)
}

func TestDeleteReferenceCycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	x := &category{ID: 5, Name: "x"}
	y := &category{ID: 6, Parent: x, Name: "y"}
	mustStore(t, repo, x, y)
	x.Parent = y
	require.NoError(t, repo.Update(ctx, x))

	require.NoError(t, repo.Delete(ctx, "Category", 5))
	n, err := repo.Find("Category", nil).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindChildrenOf(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := &author{ID: "a", Name: "A"}
	b := &author{ID: "b", Name: "B"}
	c := &author{ID: "c", Name: "C"}
	mustStore(t, repo, a, b, c)
	mustStore(t, repo,
		&post{Author: a, Title: "a1", State: statusDraft},
		&post{Author: a, Title: "a2", State: statusPublished},
		&post{Author: b, Title: "b1", State: statusPublished},
		&post{Author: c, Title: "c1", State: statusPublished},
	)

	posts, err := repo.FindChildrenOf("Post", nil, a).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, posts.Len())

	posts, err = repo.FindChildrenOf("Post", types.Conditions{"State": statusPublished}, a, b).
		OrderAsc("ID").Get(ctx)
	require.NoError(t, err)
	titles, err := posts.Pluck("Title")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a2", "b1"}, titles)

	_, err = repo.FindChildrenOf("Post", nil).Get(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = repo.FindChildrenOf("Comment", nil, &post{Title: "unsaved"}).Get(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = repo.FindChildrenOf("Author", nil, a).Get(ctx)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestCollectionProperty(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	t1 := &tag{Name: "go"}
	t2 := &tag{Name: "sql"}
	mustStore(t, repo, t1, t2)

	tagCfg, err := repo.Registry().For("Tag")
	require.NoError(t, err)
	tags, err := entity.NewCollection(tagCfg, t2, t1)
	require.NoError(t, err)
	mustStore(t, repo, &bundle{ID: "b", Tags: tags})

	repo.Cache().Clear()
	got, err := repo.Get(ctx, "Bundle", "b")
	require.NoError(t, err)
	hb := got.(*bundle)
	require.NotNil(t, hb.Tags)
	require.Equal(t, 2, hb.Tags.Len())
	assert.Equal(t, "sql", hb.Tags.At(0).(*tag).Name)
	assert.Equal(t, "go", hb.Tags.At(1).(*tag).Name)

	first, err := repo.Get(ctx, "Tag", t2.ID)
	require.NoError(t, err)
	assert.Same(t, first, hb.Tags.At(0))
}

func TestSpawnFromRow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Adapter().Insert(ctx, "authors", database.Row{
		"id":     "raw",
		"status": "x",
		"rank":   int64(9),
		"props":  `{"id":"raw","name":"Raw","rank":9,"legacy":true}`,
	}, "")
	require.NoError(t, err)

	got, err := repo.Get(ctx, "Author", "raw")
	require.NoError(t, err)
	a := got.(*author)
	assert.Equal(t, "Raw", a.Name)
	assert.Equal(t, int64(9), a.Rank)

	// stored nulls bypass converters and hydrate as zero values
	res, err := repo.Adapter().Insert(ctx, "posts", database.Row{
		"author": "raw",
		"props":  `{"author":"raw","title":"nulls","tags":null,"state":null,"created":null}`,
	}, "id")
	require.NoError(t, err)
	got, err = repo.Get(ctx, "Post", res.LastInsertID)
	require.NoError(t, err)
	p := got.(*post)
	assert.Equal(t, "nulls", p.Title)
	assert.Same(t, a, p.Author)
	assert.Nil(t, p.Tags)
	assert.Zero(t, p.State)
	assert.True(t, p.Created.IsZero())

	_, err = repo.SpawnFromRow(ctx, "Author", database.Row{"props": "{}"})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = repo.SpawnFromRow(ctx, "Author", database.Row{"id": "broken", "props": "{nope"})
	assert.ErrorIs(t, err, types.ErrPropertyValidation)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	kept := &author{ID: "a0", Name: "Kept"}
	mustStore(t, repo, kept)

	require.NoError(t, repo.TxnBegin(ctx))
	err := repo.TxnBegin(ctx)
	assert.ErrorIs(t, err, types.ErrDatabase)
	assert.ErrorIs(t, err, database.ErrTxnState)

	a := &author{ID: "a1", Name: "Ann"}
	mustStore(t, repo, a)
	require.NoError(t, repo.Delete(ctx, "Author", "a0"))
	got, err := repo.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, repo.TxnRollback())

	missing, err := repo.Try(ctx, "Author", "a1")
	require.NoError(t, err)
	assert.Nil(t, missing)
	restored, err := repo.Get(ctx, "Author", "a0")
	require.NoError(t, err)
	assert.Same(t, kept, restored)

	err = repo.TxnCommit()
	assert.ErrorIs(t, err, types.ErrDatabase)
	assert.ErrorIs(t, err, database.ErrTxnState)
	assert.ErrorIs(t, repo.TxnRollback(), database.ErrTxnState)
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.TxnBegin(ctx))
	a := &author{ID: "a1", Name: "Ann"}
	b := &author{ID: "b1", Name: "Bob"}
	require.NoError(t, repo.Store(ctx, a, b))
	assert.True(t, repo.Adapter().InTxn())
	require.NoError(t, repo.TxnCommit())

	repo.Cache().Clear()
	n, err := repo.Find("Author", nil).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestConcurrentReadsWithLocker(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, WithCache(NewIdentityCache(WithLocker(&sync.Mutex{}))))
	mustStore(t, repo, &author{ID: "a1", Name: "Ann"})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Get(ctx, "Author", "a1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
