package testutils

import (
	"github.com/papercomputeco/graphstack/pkg/model"
)

// BlogModelTOML is the model most tests run against: authors write posts,
// posts carry tags and comments.
const BlogModelTOML = `
name = "blog"
version = 1

[[entities]]
name = "Author"

  [[entities.attributes]]
  name = "name"
  type = "string"
  required = true

  [[entities.attributes]]
  name = "email"
  type = "string"

  [[entities.relationships]]
  name = "posts"
  target = "Post"
  to_many = true
  inverse = "author"
  delete_rule = "cascade"

[[entities]]
name = "Post"

  [[entities.attributes]]
  name = "title"
  type = "string"
  required = true

  [[entities.attributes]]
  name = "body"
  type = "string"

  [[entities.attributes]]
  name = "views"
  type = "int"
  default = 0

  [[entities.attributes]]
  name = "rating"
  type = "float"

  [[entities.attributes]]
  name = "published"
  type = "bool"
  default = false

  [[entities.attributes]]
  name = "published_at"
  type = "time"

  [[entities.relationships]]
  name = "author"
  target = "Author"
  inverse = "posts"

  [[entities.relationships]]
  name = "tags"
  target = "Tag"
  to_many = true
  inverse = "posts"

  [[entities.relationships]]
  name = "comments"
  target = "Comment"
  to_many = true
  inverse = "post"
  delete_rule = "cascade"

[[entities]]
name = "Tag"

  [[entities.attributes]]
  name = "label"
  type = "string"
  required = true

  [[entities.relationships]]
  name = "posts"
  target = "Post"
  to_many = true
  inverse = "tags"
  delete_rule = "deny"

[[entities]]
name = "Comment"

  [[entities.attributes]]
  name = "text"
  type = "string"
  required = true

  [[entities.relationships]]
  name = "post"
  target = "Post"
  inverse = "comments"
`

// BlogModel parses BlogModelTOML and panics on failure.
func BlogModel() *model.Model {
	m, err := model.Parse([]byte(BlogModelTOML))
	if err != nil {
		panic(err)
	}
	return m
}

// MustModel builds a model from a definition and panics on failure.
func MustModel(def model.Definition) *model.Model {
	m, err := model.New(def)
	if err != nil {
		panic(err)
	}
	return m
}
