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

// Package repository maps registered entities onto rows through a
// database.Adapter. A Repository hydrates rows into entities, writes them
// back, cascades deletes to children and keeps an identity cache so that
// every (type, primary value) pair has one live instance.
//
// Each entity is one row: the primary column, one column per indexed
// property and a JSON props column holding every set property.
package repository
