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

package types

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

const defaultPageSize = 10

// PageRequest describes a 1-based page, an optional filter and ordering
// expressions such as "id ASC".
type PageRequest struct {
	Page     int
	PageSize int
	Filter   *QueryFilter
	Orders   []string
}

// NewPageRequest constructs a PageRequest; filter and orders may be nil.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders ...string) *PageRequest {
	return &PageRequest{Page: page, PageSize: pageSize, Filter: filter, Orders: orders}
}

// Normalize clamps page and page size to usable values.
func (p *PageRequest) Normalize() *PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	return p
}

// Offset returns the number of rows skipped before this page.
func (p *PageRequest) Offset() int {
	p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Items    []*T `json:"items"`
}

// NewPagination constructs an empty pagination container for the request.
func NewPagination[T any](req *PageRequest) *Pagination[T] {
	req.Normalize()
	return &Pagination[T]{Page: req.Page, PageSize: req.PageSize, Items: make([]*T, 0)}
}
