/*
Package presentation holds the active set for each presentation region and
the arbitration that picks what is shown.

One generic Manager serves all three kinds. Entries are keyed by
(owner, id); presenting or updating an existing key replaces the descriptor
wholesale and bumps its sequence number. The ranked view orders entries by
priority, highest first, then by sequence, newest first, and keeps the top
N where N is the region's slot count (one for live activities and notch
experiences).

Each region also tracks whether the host's own native content is active.
When it is, only items that declare coexistence stay visible; arbitration
among extension items is unaffected.

Managers are not safe for concurrent use. The host coordinator owns them.
*/
package presentation
