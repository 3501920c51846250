package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weaviateopts "github.com/kart-io/docqa/pkg/options/weaviate"
)

func newTestClient(baseURL string) *Client {
	opts := weaviateopts.NewOptions()
	opts.BaseURL = baseURL
	opts.Timeout = 5 * time.Second
	return New(opts)
}

func TestCreateObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/objects", r.URL.Path)

		var obj Object
		require.NoError(t, json.NewDecoder(r.Body).Decode(&obj))
		assert.Equal(t, "Document", obj.Class)
		assert.Equal(t, "content text", obj.Properties["content"])
		assert.Len(t, obj.Vector, 2)

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.CreateObject(context.Background(), &Object{
		ID:         "0cc175b9-c0f1-b6a8-31c3-99e269772661",
		Class:      "Document",
		Properties: map[string]interface{}{"content": "content text"},
		Vector:     []float32{0.1, 0.2},
	})
	require.NoError(t, err)
}

func TestCreateObject_AlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":[{"message":"id '0cc175b9' already exists"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.CreateObject(context.Background(), &Object{Class: "Document", ID: "0cc175b9"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateObject_OtherError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":[{"message":"invalid property name"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.CreateObject(context.Background(), &Object{Class: "Document"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "invalid property name")
}

func TestGetObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/objects/Document/abc", r.URL.Path)
		fmt.Fprint(w, `{"id":"abc","class":"Document","properties":{"content":"stored text"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	obj, err := client.GetObject(context.Background(), "Document", "abc")
	require.NoError(t, err)
	assert.Equal(t, "stored text", obj.Properties["content"])
}

func TestGetObject_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetObject(context.Background(), "Document", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/objects/Document/abc", r.URL.Path)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.ReplaceObject(context.Background(), &Object{
		ID:         "abc",
		Class:      "Document",
		Properties: map[string]interface{}{"content": "new text"},
	})
	require.NoError(t, err)
}

func TestClassLifecycle(t *testing.T) {
	created := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/Document":
			if created {
				fmt.Fprint(w, `{"class":"Document"}`)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			var schema ClassSchema
			require.NoError(t, json.NewDecoder(r.Body).Decode(&schema))
			assert.Equal(t, "Document", schema.Class)
			assert.Equal(t, "none", schema.Vectorizer)
			created = true
			fmt.Fprint(w, `{}`)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	exists, err := client.ClassExists(ctx, "Document")
	require.NoError(t, err)
	assert.False(t, exists)

	err = client.CreateClass(ctx, &ClassSchema{
		Class:      "Document",
		Vectorizer: "none",
		Properties: []ClassProperty{{Name: "content", DataType: []string{"text"}}},
	})
	require.NoError(t, err)

	exists, err = client.ClassExists(ctx, "Document")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGraphQL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "Get")

		fmt.Fprint(w, `{"data":{"Get":{"Document":[{"content":"hit"}]}}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.GraphQL(context.Background(), `{ Get { Document { content } } }`)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hit")
}

func TestGraphQL_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null,"errors":[{"message":"Unknown argument \"hybrid\""}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GraphQL(context.Background(), `{ Get { Document { content } } }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown argument")
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/.well-known/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "weaviate", client.Name())
}

func TestRenderWhere(t *testing.T) {
	assert.Equal(t, "", RenderWhere(nil))

	single := RenderWhere([]WhereClause{{Path: "source", Value: "pdf"}})
	assert.Equal(t, `{path: ["source"], operator: Equal, valueText: "pdf"}`, single)

	combined := RenderWhere([]WhereClause{
		{Path: "source", Value: "pdf"},
		{Path: "language", Value: "en"},
	})
	assert.Contains(t, combined, "operator: And")
	assert.Contains(t, combined, `{path: ["source"], operator: Equal, valueText: "pdf"}`)
	assert.Contains(t, combined, `{path: ["language"], operator: Equal, valueText: "en"}`)
}

func TestRenderWhere_EscapesValues(t *testing.T) {
	rendered := RenderWhere([]WhereClause{{Path: "source", Value: `pd"f`}})
	assert.Contains(t, rendered, `"pd\"f"`)
}

func TestRenderVector(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2]", RenderVector([]float32{0.5, -1, 2}))
}
