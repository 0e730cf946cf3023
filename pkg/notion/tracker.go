package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
)

// Tracker property names on the application board. The database must carry
// these exact columns.
const (
	propTitle       = "Title"
	propCompany     = "Company"
	propStage       = "Stage"
	propURL         = "URL"
	propFingerprint = "Fingerprint"
	propUpdated     = "Last Updated"
)

// QueryAll fetches all pages from a Notion database, handling pagination.
// Rate limiting is enforced by the Client (3 req/s by default).
// Uses prefetch: starts fetching page N+1 in a goroutine while processing
// page N, reducing effective latency for multi-page results.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}

		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		nextReq := &notionapi.DatabaseQueryRequest{
			StartCursor: resp.NextCursor,
		}
		if filter != nil {
			nextReq.Filter = filter.Filter
			nextReq.Sorts = filter.Sorts
			nextReq.PageSize = filter.PageSize
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// FindPageByFingerprint locates the tracker page for an opportunity, if one
// exists. Returns empty string when the board has no row yet.
func FindPageByFingerprint(ctx context.Context, c Client, dbID, fingerprint string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propFingerprint,
			RichText: &notionapi.TextFilterCondition{
				Equals: fingerprint,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find page by fingerprint")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// UpsertOpportunity creates or updates the tracker row for an opportunity.
func UpsertOpportunity(ctx context.Context, c Client, dbID string, op model.Opportunity) error {
	props := opportunityProperties(op)

	pageID, err := FindPageByFingerprint(ctx, c, dbID, op.Fingerprint)
	if err != nil {
		return err
	}

	if pageID == "" {
		_, err = c.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		})
		return eris.Wrapf(err, "notion: create tracker row %s", op.Fingerprint)
	}

	_, err = c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
	return eris.Wrapf(err, "notion: update tracker row %s", op.Fingerprint)
}

func opportunityProperties(op model.Opportunity) notionapi.Properties {
	updated := notionapi.Date(op.UpdatedAt)
	if op.UpdatedAt.IsZero() {
		updated = notionapi.Date(time.Now().UTC())
	}
	return notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: op.Title}}},
		},
		propCompany: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: op.Company}}},
		},
		propStage: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(op.Stage)},
		},
		propURL: notionapi.URLProperty{URL: op.URL},
		propFingerprint: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: op.Fingerprint}}},
		},
		propUpdated: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &updated},
		},
	}
}
