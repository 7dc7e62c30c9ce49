/*
Package matcher links galleries to external catalog records.

A search runs in two phases per gallery:

  - Mirror: the local catalog mirror is queried by title phrase, then by the
    individual words of the title with bracketed segments removed. One hit
    is taken as is; several hits go through SelectMatch.
  - Remote: the catalog is searched by the SHA-1 of the first page (covers
    only, then all pages), then by the second page. The alternate catalog's
    title search is the last resort.

Records found remotely are fetched through the metadata API in batches of
APIBatchSize. Galleries forced to refresh that already have a record are
fetched in batches of APIMaxBatchSize. A fatal remote error (bad
credentials, ban) aborts the whole batch.
*/
package matcher
