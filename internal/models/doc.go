// Package models defines the core domain models for the group-order
// coordination engine.
//
// # Model Overview
//
//   - GroupOrder: a shared food order placed on behalf of a friend group
//   - OrderItem: immutable line items on a group order
//   - Participant: one group member's share of an order and their payment
//     and delivery state
//   - PaymentRecord: append-only record of a successful payment
//   - Challenge: a single-use, time-limited payment authorization code
//   - User: a registered account, source of participant emails
//
// # Design Principles
//
//  1. **Money is integer cents**: shares must sum to the order total exactly,
//     so no float arithmetic touches amounts.
//  2. **Avoid circular references**: models reference each other by ID string,
//     never by pointer.
//  3. **Identity before persistence**: IDs are UUIDs assigned when the model
//     is constructed, so references exist before the first store write.
//
// Group session state (who is connected to the shared video call) is
// deliberately NOT a stored model: it is live-connection state owned by the
// session registry and rebuilt from zero on restart.
package models
