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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomoncle/entorm/converter"
	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
	"github.com/tomoncle/entorm/validator"
)

type status int

const (
	statusDraft status = iota + 1
	statusPublished
)

func (s status) IsValid() bool  { return s == statusDraft || s == statusPublished }
func (s status) Number() int    { return int(s) }
func (s status) String() string { return s.Name() }
func (s status) Desc() string   { return s.Name() }
func (s status) Name() string {
	switch s {
	case statusDraft:
		return "Draft"
	case statusPublished:
		return "Published"
	}
	return types.IllegalName
}

type author struct {
	ID     string
	Name   string
	Status string
	Rank   int64
}

func (*author) EntityType() string { return "Author" }

type post struct {
	ID      int64
	Author  *author
	Title   string
	State   status
	Tags    []string
	Created time.Time

	creates int
	updates int
}

func (*post) EntityType() string { return "Post" }
func (p *post) OnCreate()        { p.creates++ }
func (p *post) OnUpdate()        { p.updates++ }

type comment struct {
	ID   string
	Post *post
	Body string
}

func (*comment) EntityType() string { return "Comment" }

type category struct {
	ID     int64
	Parent *category
	Name   string
}

func (*category) EntityType() string { return "Category" }

type tag struct {
	ID   int64
	Name string
}

func (*tag) EntityType() string { return "Tag" }

type bundle struct {
	ID   string
	Tags *entity.Collection
}

func (*bundle) EntityType() string { return "Bundle" }

func testEntities(t *testing.T) *entity.Registry {
	t.Helper()
	authors := entity.Define("Author", func() *author { return &author{} }).
		Prop(
			entity.Field("ID", func(a *author) *string { return &a.ID }).Primary(),
			entity.Field("Name", func(a *author) *string { return &a.Name }).
				Validate(validator.Rules{NotEmpty: true, MaxLength: validator.Length(5)}),
			entity.Field("Status", func(a *author) *string { return &a.Status }).Index(),
			entity.Field("Rank", func(a *author) *int64 { return &a.Rank }).Index(),
		).MustBuild()
	posts := entity.Define("Post", func() *post { return &post{} }).
		Prop(
			entity.Field("ID", func(p *post) *int64 { return &p.ID }).Primary().AutoIncrement(),
			entity.Field("Author", func(p *post) **author { return &p.Author }).Parent("Author"),
			entity.Field("Title", func(p *post) *string { return &p.Title }),
			entity.Field("State", func(p *post) *status { return &p.State }).
				OmitZero().Index().Convert(converter.KeyEnum, "status"),
			entity.Field("Tags", func(p *post) *[]string { return &p.Tags }).Convert(converter.KeyJSON),
			entity.Field("Created", func(p *post) *time.Time { return &p.Created }).
				OmitZero().Generate(entity.GenerateNow).Convert(converter.KeyDatetime),
		).MustBuild()
	comments := entity.Define("Comment", (func() *comment)(nil)).
		Prop(
			entity.Field("ID", func(c *comment) *string { return &c.ID }).
				Primary().OmitZero().Generate(entity.GenerateUUID),
			entity.Field("Post", func(c *comment) **post { return &c.Post }).Parent("Post"),
			entity.Field("Body", func(c *comment) *string { return &c.Body }),
		).
		Constructor(func(args entity.Args) (*comment, error) {
			body, err := entity.Arg[string](args, "Body")
			if err != nil {
				return nil, err
			}
			return &comment{Body: body}, nil
		}, "Body").
		MustBuild()
	categories := entity.Define("Category", func() *category { return &category{} }).
		Prop(
			entity.Field("ID", func(c *category) *int64 { return &c.ID }).Primary(),
			entity.Field("Parent", func(c *category) **category { return &c.Parent }).Parent("Category"),
			entity.Field("Name", func(c *category) *string { return &c.Name }),
		).MustBuild()
	tags := entity.Define("Tag", func() *tag { return &tag{} }).
		Prop(
			entity.Field("ID", func(t *tag) *int64 { return &t.ID }).Primary().AutoIncrement(),
			entity.Field("Name", func(t *tag) *string { return &t.Name }).Index(),
		).MustBuild()
	bundles := entity.Define("Bundle", func() *bundle { return &bundle{} }).
		Prop(
			entity.Field("ID", func(b *bundle) *string { return &b.ID }).Primary(),
			entity.Field("Tags", func(b *bundle) **entity.Collection { return &b.Tags }).
				Convert(converter.KeyCollection, "Tag"),
		).MustBuild()

	reg, err := entity.NewRegistry(comments, posts, authors, categories, tags, bundles)
	require.NoError(t, err)
	return reg
}

func testConverters() *converter.Registry {
	convs := converter.NewRegistry()
	convs.RegisterEnum("status", statusDraft, statusPublished)
	return convs
}

// newTestRepository returns a repository on a private in-memory sqlite
// database holding the tables of testEntities.
func newTestRepository(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	ctx := context.Background()

	mgr := database.NewDatabaseManager(&database.ConnectionConfig{
		Type:   "sqlite",
		DBName: database.MemoryDBName,
	})
	mgr.SetLogger(database.NopLogger{})
	require.NoError(t, mgr.Connect(ctx))
	t.Cleanup(func() { _ = mgr.Disconnect() })

	reg := testEntities(t)
	require.NoError(t, database.NewMigrationManager(mgr.GetDB(), database.NopLogger{}, reg).RunMigrations(ctx))

	base := []Option{WithConverters(testConverters()), WithLogger(database.NopLogger{})}
	repo, err := New(mgr.Adapter(), reg, append(base, opts...)...)
	require.NoError(t, err)
	return repo
}

func mustStore(t *testing.T, repo *Repository, entities ...entity.Entity) {
	t.Helper()
	require.NoError(t, repo.Store(context.Background(), entities...))
}
